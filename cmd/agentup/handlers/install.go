// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/imamik/agentup/internal/config"
	"github.com/imamik/agentup/internal/contention"
	"github.com/imamik/agentup/internal/diagnostics"
	"github.com/imamik/agentup/internal/install"
	"github.com/imamik/agentup/internal/metrics"
	"github.com/imamik/agentup/internal/observe"
	"github.com/imamik/agentup/internal/platform/controlplane"
	hcloudplatform "github.com/imamik/agentup/internal/platform/hcloud"
	"github.com/imamik/agentup/internal/platform/s3"
	sshplatform "github.com/imamik/agentup/internal/platform/ssh"
	"github.com/imamik/agentup/internal/probe"
	"github.com/imamik/agentup/internal/readiness"
	"github.com/imamik/agentup/internal/util/retry"
)

// Runner executes commands on the target machine.
type Runner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Uploader ships a diagnostics bundle to object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	BucketExists(ctx context.Context) (bool, error)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// newSSHClient builds the command runner for the target.
	newSSHClient = func(cfg *sshplatform.Config) (Runner, error) {
		return sshplatform.NewClient(cfg)
	}

	// resolveHCloudIPv4 resolves a Hetzner Cloud server name to its public
	// IPv4 address.
	resolveHCloudIPv4 = func(ctx context.Context, token, name string) (string, error) {
		return hcloudplatform.NewResolver(token).ResolveIPv4(ctx, name)
	}

	// newRegistrar builds the control-plane client.
	newRegistrar = func(baseURL, token string) (install.Registrar, error) {
		return controlplane.NewClient(baseURL, token)
	}

	// newUploader builds the diagnostics bundle uploader.
	newUploader = func(cfg config.S3Config) (Uploader, error) {
		return s3.NewUploader(cfg.Endpoint, cfg.Region, cfg.Bucket,
			os.Getenv(cfg.AccessKeyEnv), os.Getenv(cfg.SecretKeyEnv))
	}
)

// InstallOptions carries the install command's flag values.
type InstallOptions struct {
	ConfigPath string
	TargetHost string
	JSONLogs   bool
}

// Install runs a full installation against the configured target machine.
//
// The workflow:
//  1. Loads and validates the configuration, then applies env overrides
//  2. Resolves the target address (directly or via the Hetzner Cloud API)
//  3. Connects over SSH and waits for system readiness
//  4. Waits for package-manager contention to clear
//  5. Installs dependencies and the agent with bounded retries
//  6. Verifies the service and registers with the control plane
//  7. Records the outcome in the metrics artifact and, on failure, uploads
//     the diagnostics bundle when an upload target is configured
//
// The returned error is the run's ErrorRecord; main maps it to the exit code.
func Install(ctx context.Context, opts InstallOptions) error {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()

	if opts.TargetHost != "" {
		cfg.Target.Host = opts.TargetHost
	}

	obs := newObserver(opts.JSONLogs)

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

	agentSpec := install.AgentSpec{
		DownloadURL:    cfg.Agent.DownloadURL,
		ChecksumSHA256: cfg.Agent.ChecksumSHA256,
		Version:        cfg.Agent.Version,
		InstallDir:     cfg.Agent.InstallDir,
		ServiceName:    cfg.Agent.ServiceName,
		Dependencies:   cfg.Agent.Dependencies,
	}
	if err := agentSpec.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	steps := install.NewSteps(runner, agentSpec)

	var registrar install.Registrar
	if cfg.ControlPlane.URL != "" {
		registrar, err = newRegistrar(cfg.ControlPlane.URL, os.Getenv(cfg.ControlPlane.TokenEnv))
		if err != nil {
			return fmt.Errorf("control plane setup failed: %w", err)
		}
	}

	run := install.NewRun(host, cfg.MaxRetries)
	orch := install.New(install.Params{
		Run: run,
		Readiness: readiness.NewValidator(runner, readiness.Config{
			MinDiskMB:    cfg.MinDiskMB,
			MinMemoryMB:  cfg.MinMemoryMB,
			ProbeURL:     cfg.Target.ProbeURL,
			PollInterval: cfg.PollInterval,
			Timeout:      cfg.ReadinessTimeout,
		}, obs),
		Contention: contention.NewMonitor(probe.NewLinuxProbe(runner), contention.Config{
			PollInterval: cfg.PollInterval,
			Timeout:      cfg.ContentionTimeout,
		}, obs),
		Steps:        steps.List(),
		Verify:       steps.VerifyService,
		Registrar:    registrar,
		AgentVersion: cfg.Agent.Version,
		Collector:    diagnostics.NewCollector(runner, diagnosticsConfig(cfg)),
		Policy: retry.Policy{
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			MaxAttempts: cfg.MaxRetries,
		},
		Observer: obs,
	})

	runErr := orch.Execute(ctx)

	recordOutcome(cfg, run, runErr == nil, obs)
	if runErr != nil {
		uploadDiagnostics(ctx, cfg, run, obs)
	}

	return runErr
}

func newObserver(jsonLogs bool) observe.Observer {
	if jsonLogs {
		return observe.NewJSON(os.Stderr)
	}
	return observe.NewText(os.Stderr)
}

// resolveTarget returns the host to SSH to, resolving a Hetzner Cloud server
// name when no host is configured directly.
func resolveTarget(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Target.Host != "" {
		return cfg.Target.Host, nil
	}

	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return "", fmt.Errorf("HCLOUD_TOKEN must be set to resolve server %q", cfg.Target.HCloudServer)
	}
	host, err := resolveHCloudIPv4(ctx, token, cfg.Target.HCloudServer)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target: %w", err)
	}
	return host, nil
}

// diagnosticsConfig derives the collector configuration; when no endpoints
// are configured explicitly, the download source and control plane are
// probed.
func diagnosticsConfig(cfg *config.Config) diagnostics.Config {
	endpoints := cfg.Diagnostics.Endpoints
	if len(endpoints) == 0 {
		endpoints = append(endpoints, cfg.Agent.DownloadURL)
		if cfg.ControlPlane.URL != "" {
			endpoints = append(endpoints, cfg.ControlPlane.URL)
		}
	}
	return diagnostics.Config{
		JournalLines: cfg.Diagnostics.JournalLines,
		Endpoints:    endpoints,
	}
}

// recordOutcome appends the run to the metrics artifact. Metrics are
// best-effort; a recording failure is reported but never changes the run's
// result.
func recordOutcome(cfg *config.Config, run *install.Run, succeeded bool, obs observe.Observer) {
	retries := run.Attempt - 1
	if retries < 0 {
		retries = 0
	}

	store := metrics.NewStore(cfg.MetricsPath, textfilePath(cfg.MetricsPath))
	if _, err := store.Record(metrics.Outcome{
		Succeeded: succeeded,
		Retries:   retries,
		WaitTime:  run.TotalWait,
	}); err != nil {
		obs.Event(observe.Event{Stage: "metrics", Message: fmt.Sprintf("failed to record outcome: %v", err)})
	}
}

func textfilePath(metricsPath string) string {
	return strings.TrimSuffix(metricsPath, ".json") + ".prom"
}

// uploadDiagnostics ships the failure snapshot to the configured bucket.
// Best-effort: an upload problem is logged, never masks the install error.
func uploadDiagnostics(ctx context.Context, cfg *config.Config, run *install.Run, obs observe.Observer) {
	if cfg.Diagnostics.Upload.Bucket == "" || run.LastError == nil || run.LastError.Diagnostics == nil {
		return
	}

	uploader, err := newUploader(cfg.Diagnostics.Upload)
	if err != nil {
		obs.Event(observe.Event{Stage: "diagnostics", Message: fmt.Sprintf("upload setup failed: %v", err)})
		return
	}

	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	exists, err := uploader.BucketExists(uploadCtx)
	if err != nil {
		obs.Event(observe.Event{Stage: "diagnostics", Message: fmt.Sprintf("bucket check failed: %v", err)})
		return
	}
	if !exists {
		obs.Event(observe.Event{Stage: "diagnostics", Message: "bucket does not exist, skipping upload",
			Fields: map[string]string{"bucket": cfg.Diagnostics.Upload.Bucket}})
		return
	}

	key := fmt.Sprintf("diagnostics/%s/%s.json", time.Now().UTC().Format("2006-01-02"), run.ID)
	if err := uploader.Upload(uploadCtx, key, run.LastError.Diagnostics.JSON()); err != nil {
		obs.Event(observe.Event{Stage: "diagnostics", Message: fmt.Sprintf("upload failed: %v", err)})
		return
	}
	obs.Event(observe.Event{Stage: "diagnostics", Message: "snapshot uploaded", Fields: map[string]string{"key": key}})
}
