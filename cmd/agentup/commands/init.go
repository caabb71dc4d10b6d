package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/agentup/cmd/agentup/handlers"
)

// Init returns the command for interactively creating a configuration file.
//
// Flags:
//
//	--output, -o: Path to output file (default "agentup.yaml")
//	--advanced, -a: Show the timing knobs as well
func Init() *cobra.Command {
	var (
		outputPath string
		advanced   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a configuration file",
		Long: `Interactively create an agentup configuration file.

This command asks about:

  - The target machine (host or Hetzner Cloud server name, SSH access)
  - The agent artifact (download URL, checksum, version, service name)
  - OS dependencies to install first
  - The control plane to register with (optional)

Use --advanced to also tune readiness and contention timeouts, the poll
interval, and the per-step retry budget. Everything else uses documented
defaults that can be edited in the file afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath, advanced)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "agentup.yaml", "Output file path")
	cmd.Flags().BoolVarP(&advanced, "advanced", "a", false, "Show advanced configuration options")

	return cmd
}
