package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/imamik/agentup/internal/config"
	"github.com/imamik/agentup/internal/observe"
	sshplatform "github.com/imamik/agentup/internal/platform/ssh"
	"github.com/imamik/agentup/internal/probe"
	"github.com/imamik/agentup/internal/readiness"
)

// Report is the doctor command's machine-readable output.
type Report struct {
	Target         string                `json:"target"`
	State          readiness.SystemState `json:"state"`
	MinDiskMB      int                   `json:"minDiskMb"`
	MinMemoryMB    int                   `json:"minMemoryMb"`
	Ready          bool                  `json:"ready"`
	PackageManager probe.Status          `json:"packageManager"`
}

// doctorOut is where the report is written; replaced in tests.
var doctorOut io.Writer = os.Stdout

// Doctor inspects the target machine and reports what an install run would
// see, without changing anything.
func Doctor(ctx context.Context, configPath string, jsonOutput bool) error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()

	host, err := resolveTarget(ctx, cfg)
	if err != nil {
		return err
	}

	runner, err := newSSHClient(&sshplatform.Config{
		Host:           host,
		Port:           cfg.Target.Port,
		User:           cfg.Target.User,
		PrivateKeyPath: cfg.Target.PrivateKeyPath,
	})
	if err != nil {
		return fmt.Errorf("ssh setup failed: %w", err)
	}

	report, err := buildReport(ctx, cfg, host, runner)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(doctorOut)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	renderReport(doctorOut, report)
	return nil
}

// buildReport runs one readiness check and one package-manager probe.
func buildReport(ctx context.Context, cfg *config.Config, host string, runner Runner) (*Report, error) {
	validator := readiness.NewValidator(runner, readiness.Config{
		MinDiskMB:    cfg.MinDiskMB,
		MinMemoryMB:  cfg.MinMemoryMB,
		ProbeURL:     cfg.Target.ProbeURL,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.ReadinessTimeout,
	}, observe.Nop())
	state := validator.Check(ctx)

	status, err := probe.NewLinuxProbe(runner).Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("package manager probe failed: %w", err)
	}

	return &Report{
		Target:         host,
		State:          state,
		MinDiskMB:      cfg.MinDiskMB,
		MinMemoryMB:    cfg.MinMemoryMB,
		Ready: state.InitComplete &&
			state.DiskFreeMB >= cfg.MinDiskMB &&
			state.MemFreeMB >= cfg.MinMemoryMB &&
			state.NetworkReachable &&
			!status.Busy,
		PackageManager: status,
	}, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func isInteractiveTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// renderReport writes the human-readable report, styled only when stdout is
// an interactive terminal.
func renderReport(w io.Writer, r *Report) {
	styled := isInteractiveTTY()

	render := func(style lipgloss.Style, s string) string {
		if styled {
			return style.Render(s)
		}
		return s
	}

	fmt.Fprintln(w, render(titleStyle, fmt.Sprintf("Target %s", r.Target)))

	check := func(label string, ok bool, detail string) {
		mark := render(okStyle, "ok")
		if !ok {
			mark = render(badStyle, "fail")
		}
		fmt.Fprintf(w, "  %-22s %s  %s\n", label, mark, render(dimStyle, detail))
	}

	check("boot initialization", r.State.InitComplete, "")
	check("free disk", r.State.DiskFreeMB >= r.MinDiskMB,
		fmt.Sprintf("%d MB free, floor %d MB", r.State.DiskFreeMB, r.MinDiskMB))
	check("free memory", r.State.MemFreeMB >= r.MinMemoryMB,
		fmt.Sprintf("%d MB free, floor %d MB", r.State.MemFreeMB, r.MinMemoryMB))
	check("network", r.State.NetworkReachable, "install source reachable")
	check("package manager", !r.PackageManager.Busy,
		fmt.Sprintf("%d lock holder(s)", len(r.PackageManager.LockHolders)))

	for _, h := range r.PackageManager.LockHolders {
		fmt.Fprintf(w, "    %s\n", render(dimStyle, fmt.Sprintf("pid %d  %s", h.PID, h.Command)))
	}

	if r.Ready {
		fmt.Fprintln(w, render(okStyle, "Ready to install."))
	} else {
		fmt.Fprintln(w, render(badStyle, "Not ready; an install run would wait."))
	}
}
