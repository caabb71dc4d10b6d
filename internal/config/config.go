// Package config defines the agentup configuration file model and its
// loading, defaulting, and validation rules.
package config

import "time"

// Config is the root of the agentup.yaml configuration.
type Config struct {
	Target       TargetConfig       `yaml:"target" mapstructure:"target"`
	Agent        AgentConfig        `yaml:"agent" mapstructure:"agent"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane,omitempty" mapstructure:"control_plane"`
	Diagnostics  DiagnosticsConfig  `yaml:"diagnostics,omitempty" mapstructure:"diagnostics"`

	// Timing knobs for readiness polling, contention waiting, and the
	// per-step retry policy. All durations accept Go duration syntax.
	ReadinessTimeout  time.Duration `yaml:"readiness_timeout,omitempty" mapstructure:"readiness_timeout"`
	ContentionTimeout time.Duration `yaml:"contention_timeout,omitempty" mapstructure:"contention_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty" mapstructure:"poll_interval"`
	MaxRetries        int           `yaml:"max_retries,omitempty" mapstructure:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay,omitempty" mapstructure:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay,omitempty" mapstructure:"max_delay"`

	// Readiness floors.
	MinDiskMB   int `yaml:"min_disk_mb,omitempty" mapstructure:"min_disk_mb"`
	MinMemoryMB int `yaml:"min_memory_mb,omitempty" mapstructure:"min_memory_mb"`

	// MetricsPath is the JSON artifact accumulated across runs. A sibling
	// .prom textfile is written next to it.
	MetricsPath string `yaml:"metrics_path,omitempty" mapstructure:"metrics_path"`
}

// TargetConfig identifies the machine to install onto and how to reach it.
type TargetConfig struct {
	// Host is the address to SSH to. Either Host or HCloudServer must be
	// set; when HCloudServer is set the public IPv4 is resolved through the
	// Hetzner Cloud API (HCLOUD_TOKEN).
	Host         string `yaml:"host,omitempty" mapstructure:"host"`
	HCloudServer string `yaml:"hcloud_server,omitempty" mapstructure:"hcloud_server"`

	Port           int    `yaml:"port,omitempty" mapstructure:"port"`
	User           string `yaml:"user,omitempty" mapstructure:"user"`
	PrivateKeyPath string `yaml:"private_key_path" mapstructure:"private_key_path"`

	// ProbeURL is the endpoint used for the outbound-network readiness
	// check. Defaults to the agent download URL.
	ProbeURL string `yaml:"probe_url,omitempty" mapstructure:"probe_url"`
}

// AgentConfig describes the agent artifact to install.
type AgentConfig struct {
	DownloadURL    string   `yaml:"download_url" mapstructure:"download_url"`
	ChecksumSHA256 string   `yaml:"checksum_sha256,omitempty" mapstructure:"checksum_sha256"`
	Version        string   `yaml:"version" mapstructure:"version"`
	InstallDir     string   `yaml:"install_dir,omitempty" mapstructure:"install_dir"`
	ServiceName    string   `yaml:"service_name" mapstructure:"service_name"`
	Dependencies   []string `yaml:"dependencies,omitempty" mapstructure:"dependencies"`
}

// ControlPlaneConfig points at the fleet control plane. Optional; when URL is
// empty the install skips registration (air-gapped mode).
type ControlPlaneConfig struct {
	URL string `yaml:"url,omitempty" mapstructure:"url"`

	// TokenEnv names the environment variable holding the enrollment
	// token. The token itself never lives in the file.
	TokenEnv string `yaml:"token_env,omitempty" mapstructure:"token_env"`
}

// DiagnosticsConfig tunes failure-evidence collection and its optional
// S3-compatible upload.
type DiagnosticsConfig struct {
	JournalLines int      `yaml:"journal_lines,omitempty" mapstructure:"journal_lines"`
	Endpoints    []string `yaml:"endpoints,omitempty" mapstructure:"endpoints"`
	Upload       S3Config `yaml:"upload,omitempty" mapstructure:"upload"`
}

// S3Config configures the diagnostics bundle upload target. Disabled unless
// Bucket is set. Credentials come from the named environment variables.
type S3Config struct {
	Endpoint     string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Region       string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket       string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty" mapstructure:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty" mapstructure:"secret_key_env"`
}

// Defaults applied by LoadFile when the file leaves a knob unset.
const (
	DefaultReadinessTimeout  = 10 * time.Minute
	DefaultContentionTimeout = 5 * time.Minute
	DefaultPollInterval      = 10 * time.Second
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = 30 * time.Second
	DefaultMaxDelay          = 5 * time.Minute

	DefaultMinDiskMB   = 1024
	DefaultMinMemoryMB = 256

	DefaultSSHPort      = 22
	DefaultSSHUser      = "root"
	DefaultInstallDir   = "/opt/agent"
	DefaultJournalLines = 100
	DefaultMetricsPath  = "/var/lib/agentup/metrics.json"
)
