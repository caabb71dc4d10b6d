package wizard

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/agentup/internal/config"
)

// ToConfig converts wizard answers into a Config. Knobs the wizard does not
// ask about get their documented defaults at load time, so the written file
// stays minimal.
func ToConfig(result *Result) *config.Config {
	cfg := &config.Config{
		Target: config.TargetConfig{
			Host:           result.Host,
			HCloudServer:   result.HCloudServer,
			User:           result.User,
			PrivateKeyPath: result.PrivateKeyPath,
		},
		Agent: config.AgentConfig{
			DownloadURL:    result.DownloadURL,
			ChecksumSHA256: result.ChecksumSHA256,
			Version:        result.Version,
			ServiceName:    result.ServiceName,
			Dependencies:   result.Dependencies,
		},
		ControlPlane: config.ControlPlaneConfig{
			URL:      result.ControlPlaneURL,
			TokenEnv: result.TokenEnv,
		},
	}

	if result.Advanced != nil {
		cfg.ReadinessTimeout = result.Advanced.ReadinessTimeout
		cfg.ContentionTimeout = result.Advanced.ContentionTimeout
		cfg.PollInterval = result.Advanced.PollInterval
		cfg.MaxRetries = result.Advanced.MaxRetries
	}

	return cfg
}

// minimalConfig is the YAML shape written by the wizard. Durations are
// rendered as strings (90s, 10m) rather than the nanosecond integers the
// default Duration marshalling would produce.
type minimalConfig struct {
	Target       config.TargetConfig        `yaml:"target"`
	Agent        config.AgentConfig         `yaml:"agent"`
	ControlPlane *config.ControlPlaneConfig `yaml:"control_plane,omitempty"`

	ReadinessTimeout  string `yaml:"readiness_timeout,omitempty"`
	ContentionTimeout string `yaml:"contention_timeout,omitempty"`
	PollInterval      string `yaml:"poll_interval,omitempty"`
	MaxRetries        int    `yaml:"max_retries,omitempty"`
}

func buildMinimalConfig(cfg *config.Config) minimalConfig {
	min := minimalConfig{
		Target:     cfg.Target,
		Agent:      cfg.Agent,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.ControlPlane.URL != "" {
		cp := cfg.ControlPlane
		min.ControlPlane = &cp
	}
	if cfg.ReadinessTimeout != 0 {
		min.ReadinessTimeout = cfg.ReadinessTimeout.String()
	}
	if cfg.ContentionTimeout != 0 {
		min.ContentionTimeout = cfg.ContentionTimeout.String()
	}
	if cfg.PollInterval != 0 {
		min.PollInterval = cfg.PollInterval.String()
	}
	return min
}

// WriteConfig writes the config to a YAML file with a descriptive header.
// Refuses to overwrite an existing file.
func WriteConfig(cfg *config.Config, outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; move it aside or pick another path", outputPath)
	}

	yamlBytes, err := yaml.Marshal(buildMinimalConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(generateHeader(outputPath))
	sb.WriteString("\n")
	sb.Write(yamlBytes)

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func generateHeader(outputPath string) string {
	return fmt.Sprintf(`# %s
# Generated by 'agentup init' on %s.
# Run 'agentup install --config %[1]s' to install the agent.
# Unset keys use their documented defaults; see 'agentup install --help'.
`, outputPath, time.Now().Format("2006-01-02"))
}
