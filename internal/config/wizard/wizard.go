// Package wizard implements the interactive `agentup init` flow that builds
// an agentup.yaml from a handful of prompts.
package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/imamik/agentup/internal/config"
)

// Result holds all the answers from the interactive wizard.
type Result struct {
	// Target
	Host           string
	User           string
	PrivateKeyPath string
	HCloudServer   string

	// Agent
	DownloadURL    string
	ChecksumSHA256 string
	Version        string
	ServiceName    string
	Dependencies   []string

	// Control plane (optional)
	ControlPlaneURL string
	TokenEnv        string

	// Advanced options (only set in advanced mode)
	Advanced *AdvancedOptions
}

// AdvancedOptions holds the timing knobs exposed in advanced mode.
type AdvancedOptions struct {
	ReadinessTimeout  time.Duration
	ContentionTimeout time.Duration
	PollInterval      time.Duration
	MaxRetries        int
}

// Run runs the interactive configuration wizard. If advanced is true the
// timing knobs are prompted for as well. The context is used for cancellation
// support (Ctrl+C).
func Run(ctx context.Context, advanced bool) (*Result, error) {
	result := &Result{
		User:           config.DefaultSSHUser,
		PrivateKeyPath: "~/.ssh/id_ed25519",
	}

	if err := runTargetGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if err := runAgentGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if err := runControlPlaneGroup(ctx, result); err != nil {
		return nil, fmt.Errorf("control plane: %w", err)
	}
	if advanced {
		if err := runAdvancedGroup(ctx, result); err != nil {
			return nil, fmt.Errorf("advanced options: %w", err)
		}
	}

	return result, nil
}

// runTargetGroup prompts for how to reach the machine.
func runTargetGroup(ctx context.Context, result *Result) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target Host").
				Description("IP or hostname to SSH to. Leave empty to resolve a Hetzner Cloud server by name instead.").
				Placeholder("10.0.0.4").
				Value(&result.Host),
			huh.NewInput().
				Title("Hetzner Cloud Server Name (Optional)").
				Description("Resolved to its public IPv4 via HCLOUD_TOKEN when Target Host is empty").
				Value(&result.HCloudServer),
			huh.NewInput().
				Title("SSH User").
				Value(&result.User).
				Validate(required("ssh user")),
			huh.NewInput().
				Title("SSH Private Key Path").
				Value(&result.PrivateKeyPath).
				Validate(required("private key path")),
		).Title("Target Machine"),
	).RunWithContext(ctx)
}

// runAgentGroup prompts for the agent artifact.
func runAgentGroup(ctx context.Context, result *Result) error {
	var depsInput string

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Agent Download URL").
				Placeholder("https://releases.example.com/agent-1.4.2.tar.gz").
				Value(&result.DownloadURL).
				Validate(validateURL),
			huh.NewInput().
				Title("SHA-256 Checksum (Optional)").
				Description("64 hex characters; leave empty to skip verification").
				Value(&result.ChecksumSHA256).
				Validate(validateChecksum),
			huh.NewInput().
				Title("Agent Version").
				Placeholder("1.4.2").
				Value(&result.Version).
				Validate(required("version")),
			huh.NewInput().
				Title("Service Name").
				Description("systemd unit and binary name").
				Placeholder("example-agent").
				Value(&result.ServiceName).
				Validate(validateServiceName),
			huh.NewInput().
				Title("OS Dependencies (Optional)").
				Description("Comma-separated package names installed before the agent").
				Placeholder("curl, tar").
				Value(&depsInput),
		).Title("Agent"),
	).RunWithContext(ctx)

	if err != nil {
		return err
	}

	result.Dependencies = splitList(depsInput)
	return nil
}

// runControlPlaneGroup prompts for the optional registration endpoint.
func runControlPlaneGroup(ctx context.Context, result *Result) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Control Plane URL (Optional)").
				Description("Leave empty for air-gapped installs; registration is skipped").
				Placeholder("https://cp.example.com").
				Value(&result.ControlPlaneURL),
			huh.NewInput().
				Title("Token Environment Variable").
				Description("Name of the env var holding the enrollment token").
				Placeholder("AGENTUP_CP_TOKEN").
				Value(&result.TokenEnv),
		).Title("Control Plane"),
	).RunWithContext(ctx)
}

// runAdvancedGroup prompts for the timing knobs.
func runAdvancedGroup(ctx context.Context, result *Result) error {
	opts := &AdvancedOptions{
		ReadinessTimeout:  config.DefaultReadinessTimeout,
		ContentionTimeout: config.DefaultContentionTimeout,
		PollInterval:      config.DefaultPollInterval,
		MaxRetries:        config.DefaultMaxRetries,
	}

	readiness := opts.ReadinessTimeout.String()
	contention := opts.ContentionTimeout.String()
	poll := opts.PollInterval.String()
	retries := fmt.Sprintf("%d", opts.MaxRetries)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Readiness Timeout").
				Description("How long to wait for the machine to become ready").
				Value(&readiness).
				Validate(validateDuration),
			huh.NewInput().
				Title("Contention Timeout").
				Description("How long to wait for the package manager to go idle").
				Value(&contention).
				Validate(validateDuration),
			huh.NewInput().
				Title("Poll Interval").
				Value(&poll).
				Validate(validateDuration),
			huh.NewInput().
				Title("Max Attempts Per Step").
				Value(&retries).
				Validate(validateCount),
		).Title("Timing"),
	).RunWithContext(ctx)

	if err != nil {
		return err
	}

	opts.ReadinessTimeout, _ = time.ParseDuration(readiness)
	opts.ContentionTimeout, _ = time.ParseDuration(contention)
	opts.PollInterval, _ = time.ParseDuration(poll)
	opts.MaxRetries, _ = strconv.Atoi(retries)
	result.Advanced = opts
	return nil
}

// splitList parses a comma-separated input into trimmed non-empty items.
func splitList(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
