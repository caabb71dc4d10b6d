package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/agentup/cmd/agentup/handlers"
)

// Install returns the command for installing the agent onto a target machine.
//
// This command drives the whole installation: readiness validation,
// package-manager contention waiting, dependency and agent installation with
// bounded retries, service verification, and control-plane registration.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: agentup.yaml)
//	--target-host: Override the target host from the config file
//	--json-logs: Emit one JSON object per log line instead of text
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required when the config names a
//	              server instead of a host)
//	AGENTUP_TIMEOUT_*, AGENTUP_RETRY_*: timing overrides
func Install() *cobra.Command {
	var (
		configPath string
		targetHost string
		jsonLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the agent on the target machine",
		Long: `Install the agent on the target machine.

The target is expected to be freshly provisioned: cloud-init may still be
running and the OS package manager may be held by unattended upgrades.
Instead of failing, agentup waits for the machine to become ready and for
the package manager to go idle, then installs with bounded retries.

Exit codes map to the failure class:

  0   success
  10  system never became ready
  11  package manager never went idle
  12  a package or agent install step failed
  13  the installed service failed verification or registration

Examples:
  # Install using agentup.yaml in the current directory
  agentup install

  # Install onto a specific host with JSON logs for machine consumption
  agentup install -c prod.yaml --target-host 10.0.0.4 --json-logs`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Install(cmd.Context(), handlers.InstallOptions{
				ConfigPath: configPath,
				TargetHost: targetHost,
				JSONLogs:   jsonLogs,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentup.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&targetHost, "target-host", "", "Override the target host from the config file")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Emit one JSON object per log line")

	return cmd
}
