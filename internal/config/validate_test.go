package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing target",
			mutate:  func(c *Config) { c.Target.Host = "" },
			wantErr: "target.host or target.hcloud_server",
		},
		{
			name:    "missing key path",
			mutate:  func(c *Config) { c.Target.PrivateKeyPath = "" },
			wantErr: "private_key_path",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Target.Port = 70000 },
			wantErr: "out of range",
		},
		{
			name:    "missing download url",
			mutate:  func(c *Config) { c.Agent.DownloadURL = "" },
			wantErr: "download_url is required",
		},
		{
			name:    "bad download url",
			mutate:  func(c *Config) { c.Agent.DownloadURL = "not a url" },
			wantErr: "not a valid URL",
		},
		{
			name:    "service name with slash",
			mutate:  func(c *Config) { c.Agent.ServiceName = "a/b" },
			wantErr: "must not contain",
		},
		{
			name:    "short checksum",
			mutate:  func(c *Config) { c.Agent.ChecksumSHA256 = "abc123" },
			wantErr: "64 hex characters",
		},
		{
			name:    "poll interval zero",
			mutate:  func(c *Config) { c.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "readiness timeout below poll interval",
			mutate:  func(c *Config) { c.ReadinessTimeout = time.Second },
			wantErr: "readiness_timeout",
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.MaxDelay = time.Second },
			wantErr: "max_delay",
		},
		{
			name:    "max retries zero",
			mutate:  func(c *Config) { c.MaxRetries = 0 },
			wantErr: "max_retries",
		},
		{
			name:    "control plane without token env",
			mutate:  func(c *Config) { c.ControlPlane.URL = "https://cp.example.com" },
			wantErr: "token_env is required",
		},
		{
			name:    "control plane bad url",
			mutate:  func(c *Config) { c.ControlPlane = ControlPlaneConfig{URL: "://", TokenEnv: "T"} },
			wantErr: "not a valid URL",
		},
		{
			name: "upload bucket without credentials",
			mutate: func(c *Config) {
				c.Diagnostics.Upload = S3Config{Bucket: "diag", Endpoint: "https://s3.example.com", Region: "eu-central-1"}
			},
			wantErr: "access_key_env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr),
				"error %q should contain %q", err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AirGappedControlPlaneOptional(t *testing.T) {
	cfg := validConfig()
	cfg.ControlPlane = ControlPlaneConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_HCloudServerInsteadOfHost(t *testing.T) {
	cfg := validConfig()
	cfg.Target.Host = ""
	cfg.Target.HCloudServer = "agent-node-1"
	assert.NoError(t, cfg.Validate())
}
