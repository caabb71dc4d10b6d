// Package readiness determines whether a target machine is ready for
// installation work.
//
// A machine is ready when boot-time initialization has finished, free disk
// and memory are above configured floors, and the install source is reachable
// over the network, all observed in the same poll. The validator owns a
// cooperative wait-with-timeout loop; individual checks are never retried
// beyond the overall ceiling.
package readiness

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imamik/agentup/internal/observe"
)

// SystemState is one poll's observation of the target machine. It is produced
// fresh on every poll and never mutated, only superseded.
type SystemState struct {
	InitComplete     bool      `json:"initComplete"`
	DiskFreeMB       int       `json:"diskFreeMb"`
	MemFreeMB        int       `json:"memFreeMb"`
	NetworkReachable bool      `json:"networkReachable"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// Runner executes a shell command on the target machine.
type Runner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Config holds the readiness thresholds and wait parameters.
type Config struct {
	// MinDiskMB is the free-disk floor for the root filesystem.
	MinDiskMB int

	// MinMemoryMB is the available-memory floor.
	MinMemoryMB int

	// ProbeURL is the install source whose reachability is verified from
	// the target machine.
	ProbeURL string

	// PollInterval is the fixed delay between polls.
	PollInterval time.Duration

	// Timeout is the overall ceiling for the wait.
	Timeout time.Duration
}

// TimeoutError reports that readiness was not achieved within the ceiling.
// LastState carries the final observation for diagnostics.
type TimeoutError struct {
	LastState SystemState
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("machine not ready after %v: init=%t disk=%dMB mem=%dMB network=%t",
		e.Timeout, e.LastState.InitComplete, e.LastState.DiskFreeMB, e.LastState.MemFreeMB, e.LastState.NetworkReachable)
}

// Validator polls the target machine until it is ready or the ceiling passes.
type Validator struct {
	runner Runner
	cfg    Config
	obs    observe.Observer
}

// NewValidator creates a readiness validator for one target machine.
func NewValidator(runner Runner, cfg Config, obs observe.Observer) *Validator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if obs == nil {
		obs = observe.Nop()
	}
	return &Validator{runner: runner, cfg: cfg, obs: obs}
}

// WaitUntilReady polls until all four checks pass in the same poll. It returns
// the passing SystemState, a *TimeoutError carrying the last observation once
// the ceiling passes, or the context error on cancellation.
func (v *Validator) WaitUntilReady(ctx context.Context) (SystemState, error) {
	start := time.Now()
	deadline := start.Add(v.cfg.Timeout)

	var last SystemState
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		last = v.Check(ctx)
		if v.ready(last) {
			v.obs.Event(observe.Event{
				Stage:    "readiness",
				Message:  "machine ready",
				Duration: time.Since(start),
				Fields:   stateFields(last),
			})
			return last, nil
		}

		v.obs.Event(observe.Event{
			Stage:   "readiness",
			Message: "machine not ready, waiting",
			Fields:  stateFields(last),
		})

		if !time.Now().Add(v.cfg.PollInterval).Before(deadline) {
			return last, &TimeoutError{LastState: last, Timeout: v.cfg.Timeout}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(v.cfg.PollInterval):
		}
	}
}

// Check runs all four sub-checks once and returns the fresh observation.
// A sub-check that errors counts as not ready, not as a hard failure.
func (v *Validator) Check(ctx context.Context) SystemState {
	return SystemState{
		InitComplete:     v.checkInit(ctx),
		DiskFreeMB:       v.checkDisk(ctx),
		MemFreeMB:        v.checkMemory(ctx),
		NetworkReachable: v.checkNetwork(ctx),
		CheckedAt:        time.Now(),
	}
}

func (v *Validator) ready(s SystemState) bool {
	return s.InitComplete &&
		s.DiskFreeMB >= v.cfg.MinDiskMB &&
		s.MemFreeMB >= v.cfg.MinMemoryMB &&
		s.NetworkReachable
}

// Machines without cloud-init count as initialized.
const initCommand = `if command -v cloud-init >/dev/null 2>&1; then cloud-init status 2>/dev/null; true; else echo "status: done"; fi`

func (v *Validator) checkInit(ctx context.Context) bool {
	out, err := v.runner.Execute(ctx, initCommand)
	if err != nil {
		return false
	}
	return strings.Contains(out, "status: done") || strings.Contains(out, "status: disabled")
}

const diskCommand = `df -Pm / | awk 'NR==2 {print $4}'`

func (v *Validator) checkDisk(ctx context.Context) int {
	out, err := v.runner.Execute(ctx, diskCommand)
	if err != nil {
		return 0
	}
	mb, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return mb
}

const memoryCommand = `awk '/MemAvailable/ {print int($2/1024)}' /proc/meminfo`

func (v *Validator) checkMemory(ctx context.Context) int {
	out, err := v.runner.Execute(ctx, memoryCommand)
	if err != nil {
		return 0
	}
	mb, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return mb
}

func (v *Validator) checkNetwork(ctx context.Context) bool {
	cmd := fmt.Sprintf(`curl -fsI --connect-timeout 5 --max-time 10 -o /dev/null %q && echo reachable`, v.cfg.ProbeURL)
	out, err := v.runner.Execute(ctx, cmd)
	if err != nil {
		return false
	}
	return strings.Contains(out, "reachable")
}

func stateFields(s SystemState) map[string]string {
	return map[string]string{
		"initComplete": strconv.FormatBool(s.InitComplete),
		"diskFreeMB":   strconv.Itoa(s.DiskFreeMB),
		"memFreeMB":    strconv.Itoa(s.MemFreeMB),
		"network":      strconv.FormatBool(s.NetworkReachable),
	}
}
