package install

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/imamik/agentup/internal/util/retry"
)

// Runner executes a shell command on the target machine.
type Runner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// AgentSpec describes what to install.
type AgentSpec struct {
	// DownloadURL is where the agent archive is fetched from.
	DownloadURL string

	// ChecksumSHA256 verifies the downloaded archive. Empty skips the check.
	ChecksumSHA256 string

	// Version is the agent version, reported during registration.
	Version string

	// InstallDir is where the archive is unpacked.
	InstallDir string

	// ServiceName is the systemd unit name; the agent binary inside
	// InstallDir is expected to carry the same name.
	ServiceName string

	// Dependencies are OS packages installed before the agent.
	Dependencies []string
}

// Validate checks that enough is known about the artifact to install it.
func (s AgentSpec) Validate() error {
	if s.DownloadURL == "" {
		return fmt.Errorf("agent download URL cannot be empty")
	}
	if s.InstallDir == "" {
		return fmt.Errorf("agent install dir cannot be empty")
	}
	if s.ServiceName == "" {
		return fmt.Errorf("agent service name cannot be empty")
	}
	return nil
}

// Step is one named, idempotent unit of installation work. The orchestrator
// wraps every step in the retry executor, so a step that is re-run after a
// partial failure must converge rather than break.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Steps builds the install steps for one agent spec on one target.
type Steps struct {
	runner Runner
	spec   AgentSpec
}

// NewSteps creates the step builder.
func NewSteps(runner Runner, spec AgentSpec) *Steps {
	return &Steps{runner: runner, spec: spec}
}

const archivePath = "/tmp/agentup-agent.tar.gz"

// Exit status used by the dependency script when no package manager exists;
// distinguishes "unsupported OS" from ordinary install failures.
const unsupportedMarker = "no supported package manager found"

// List returns the install steps in execution order.
func (s *Steps) List() []Step {
	steps := []Step{}
	if len(s.spec.Dependencies) > 0 {
		steps = append(steps, Step{Name: "install-dependencies", Run: s.installDependencies})
	}
	steps = append(steps,
		Step{Name: "download-agent", Run: s.downloadAgent},
		Step{Name: "unpack-agent", Run: s.unpackAgent},
		Step{Name: "install-service", Run: s.installService},
	)
	return steps
}

// installDependencies installs OS packages with whichever package manager the
// target carries. apt runs noninteractively so a missing tty cannot hang it.
func (s *Steps) installDependencies(ctx context.Context) error {
	pkgs := strings.Join(s.spec.Dependencies, " ")
	command := fmt.Sprintf(`set -e
if command -v apt-get >/dev/null 2>&1; then
  export DEBIAN_FRONTEND=noninteractive
  apt-get update -qq
  apt-get install -y -qq %[1]s
elif command -v dnf >/dev/null 2>&1; then
  dnf install -y -q %[1]s
elif command -v yum >/dev/null 2>&1; then
  yum install -y -q %[1]s
else
  echo "%[2]s" >&2
  exit 90
fi`, pkgs, unsupportedMarker)

	if _, err := s.runner.Execute(ctx, command); err != nil {
		return classify(fmt.Errorf("failed to install dependencies: %w", err))
	}
	return nil
}

// downloadAgent fetches the archive and verifies its checksum when one is
// configured. The download always lands in the same path, so a retry simply
// overwrites a partial file.
func (s *Steps) downloadAgent(ctx context.Context) error {
	command := fmt.Sprintf(`curl -fsSL --connect-timeout 10 --max-time 300 -o %s %q`, archivePath, s.spec.DownloadURL)
	if s.spec.ChecksumSHA256 != "" {
		command += fmt.Sprintf(` && echo "%s  %s" | sha256sum -c - >/dev/null`, s.spec.ChecksumSHA256, archivePath)
	}

	if _, err := s.runner.Execute(ctx, command); err != nil {
		return classify(fmt.Errorf("failed to download agent from %s: %w", s.spec.DownloadURL, err))
	}
	return nil
}

// unpackAgent extracts the archive into the install dir.
func (s *Steps) unpackAgent(ctx context.Context) error {
	command := fmt.Sprintf(`mkdir -p %[1]s && tar -xzf %[2]s -C %[1]s`, s.spec.InstallDir, archivePath)
	if _, err := s.runner.Execute(ctx, command); err != nil {
		return classify(fmt.Errorf("failed to unpack agent into %s: %w", s.spec.InstallDir, err))
	}
	return nil
}

// installService writes the systemd unit and starts the agent. Re-writing an
// identical unit and re-enabling an active service are both no-ops.
func (s *Steps) installService(ctx context.Context) error {
	binary := path.Join(s.spec.InstallDir, s.spec.ServiceName)
	command := fmt.Sprintf(`cat > /etc/systemd/system/%[1]s.service <<'UNIT'
[Unit]
Description=%[1]s agent
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=%[2]s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
UNIT
systemctl daemon-reload
systemctl enable --now %[1]s`, s.spec.ServiceName, binary)

	if _, err := s.runner.Execute(ctx, command); err != nil {
		return classify(fmt.Errorf("failed to install service %s: %w", s.spec.ServiceName, err))
	}
	return nil
}

// VerifyService checks that the installed agent is running.
func (s *Steps) VerifyService(ctx context.Context) error {
	out, err := s.runner.Execute(ctx, fmt.Sprintf(`systemctl is-active %s`, s.spec.ServiceName))
	if err != nil {
		return classify(fmt.Errorf("service %s health check failed: %w", s.spec.ServiceName, err))
	}
	if strings.TrimSpace(out) != "active" {
		return fmt.Errorf("service %s is not active: %s", s.spec.ServiceName, strings.TrimSpace(out))
	}
	return nil
}

// Failures that retrying cannot fix. Everything else is treated as transient
// and left to the retry executor.
var fatalMarkers = []string{
	unsupportedMarker,
	"returned error: 401",
	"returned error: 403",
	"returned error: 404",
}

// classify marks known-permanent failures as fatal so they short-circuit the
// retry budget.
func classify(err error) error {
	msg := err.Error()
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return retry.Fatal(err)
		}
	}
	return err
}
