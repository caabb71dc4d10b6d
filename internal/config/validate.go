package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for common errors and returns a detailed
// error if validation fails.
func (c *Config) Validate() error {
	if c.Target.Host == "" && c.Target.HCloudServer == "" {
		return fmt.Errorf("target.host or target.hcloud_server is required")
	}
	if c.Target.PrivateKeyPath == "" {
		return fmt.Errorf("target.private_key_path is required")
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port %d is out of range", c.Target.Port)
	}

	if err := c.validateAgent(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := c.validateTiming(); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}
	if err := c.validateControlPlane(); err != nil {
		return fmt.Errorf("control plane validation failed: %w", err)
	}
	if err := c.validateDiagnostics(); err != nil {
		return fmt.Errorf("diagnostics validation failed: %w", err)
	}

	return nil
}

func (c *Config) validateAgent() error {
	if c.Agent.DownloadURL == "" {
		return fmt.Errorf("download_url is required")
	}
	if _, err := url.ParseRequestURI(c.Agent.DownloadURL); err != nil {
		return fmt.Errorf("download_url is not a valid URL: %w", err)
	}
	if c.Agent.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Agent.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if strings.ContainsAny(c.Agent.ServiceName, " /") {
		return fmt.Errorf("service_name %q must not contain spaces or slashes", c.Agent.ServiceName)
	}
	if c.Agent.ChecksumSHA256 != "" && len(c.Agent.ChecksumSHA256) != 64 {
		return fmt.Errorf("checksum_sha256 must be 64 hex characters, got %d", len(c.Agent.ChecksumSHA256))
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.ReadinessTimeout < c.PollInterval {
		return fmt.Errorf("readiness_timeout %s is shorter than poll_interval %s", c.ReadinessTimeout, c.PollInterval)
	}
	if c.ContentionTimeout < c.PollInterval {
		return fmt.Errorf("contention_timeout %s is shorter than poll_interval %s", c.ContentionTimeout, c.PollInterval)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay %s is shorter than base_delay %s", c.MaxDelay, c.BaseDelay)
	}
	if c.MinDiskMB < 0 || c.MinMemoryMB < 0 {
		return fmt.Errorf("min_disk_mb and min_memory_mb must not be negative")
	}
	return nil
}

func (c *Config) validateControlPlane() error {
	if c.ControlPlane.URL == "" {
		return nil
	}
	u, err := url.Parse(c.ControlPlane.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q is not a valid URL", c.ControlPlane.URL)
	}
	if c.ControlPlane.TokenEnv == "" {
		return fmt.Errorf("token_env is required when url is set")
	}
	return nil
}

func (c *Config) validateDiagnostics() error {
	if c.Diagnostics.JournalLines < 0 {
		return fmt.Errorf("journal_lines must not be negative")
	}
	up := c.Diagnostics.Upload
	if up.Bucket == "" {
		return nil
	}
	if up.Endpoint == "" || up.Region == "" {
		return fmt.Errorf("upload.endpoint and upload.region are required when upload.bucket is set")
	}
	if up.AccessKeyEnv == "" || up.SecretKeyEnv == "" {
		return fmt.Errorf("upload.access_key_env and upload.secret_key_env are required when upload.bucket is set")
	}
	return nil
}
