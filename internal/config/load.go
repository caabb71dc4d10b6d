package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadFile reads, defaults, and validates the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML bytes into a defaulted Config without validating it.
// Callers that only inspect parts of the config (the doctor command) use this
// directly.
func Parse(data []byte) (*Config, error) {
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(rawConfig); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills every unset knob. Explicit zero values for the timing
// knobs are indistinguishable from unset and get defaulted too; the floors
// are validated to be positive afterwards.
func (c *Config) applyDefaults() {
	if c.ReadinessTimeout == 0 {
		c.ReadinessTimeout = DefaultReadinessTimeout
	}
	if c.ContentionTimeout == 0 {
		c.ContentionTimeout = DefaultContentionTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MinDiskMB == 0 {
		c.MinDiskMB = DefaultMinDiskMB
	}
	if c.MinMemoryMB == 0 {
		c.MinMemoryMB = DefaultMinMemoryMB
	}
	if c.MetricsPath == "" {
		c.MetricsPath = DefaultMetricsPath
	}

	if c.Target.Port == 0 {
		c.Target.Port = DefaultSSHPort
	}
	if c.Target.User == "" {
		c.Target.User = DefaultSSHUser
	}
	if c.Target.ProbeURL == "" {
		c.Target.ProbeURL = c.Agent.DownloadURL
	}

	if c.Agent.InstallDir == "" {
		c.Agent.InstallDir = DefaultInstallDir
	}

	if c.Diagnostics.JournalLines == 0 {
		c.Diagnostics.JournalLines = DefaultJournalLines
	}
}
