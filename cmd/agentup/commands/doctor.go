package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/agentup/cmd/agentup/handlers"
)

// Doctor returns the command for diagnosing a target machine before install.
//
// This command connects to the target and reports the readiness snapshot,
// package-manager status with lock holders, and endpoint reachability,
// without changing anything.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: agentup.yaml)
//	--json: Output in JSON format
func Doctor() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the target machine without installing",
		Long: `Diagnose the target machine without installing anything.

Reports what an install run would see:

  - Boot initialization (cloud-init) status
  - Free disk and memory against the configured floors
  - Outbound reachability of the agent download source
  - Package-manager activity and current lock holders

Examples:
  # Diagnose the target from agentup.yaml
  agentup doctor

  # Get the report in JSON format
  agentup doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(cmd.Context(), configPath, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentup.yaml", "Path to configuration file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
