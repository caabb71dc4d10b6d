package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/agentup/internal/config/wizard"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	runWizard   = wizard.Run
	writeConfig = wizard.WriteConfig
)

// Init runs the interactive wizard and writes the resulting configuration.
func Init(ctx context.Context, outputPath string, advanced bool) error {
	result, err := runWizard(ctx, advanced)
	if err != nil {
		return fmt.Errorf("wizard failed: %w", err)
	}

	cfg := wizard.ToConfig(result)
	if err := writeConfig(cfg, outputPath); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", outputPath)
	fmt.Printf("Run 'agentup install --config %s' to install the agent.\n", outputPath)
	return nil
}
