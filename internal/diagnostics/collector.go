// Package diagnostics gathers a best-effort snapshot of the target machine
// when a run fails.
//
// Every sub-collection is independently fail-soft: a command that cannot run
// is recorded as "unavailable" instead of aborting the snapshot. Collection
// never returns an error.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/imamik/agentup/internal/util/async"
)

// Unavailable marks a sub-collection that could not be gathered.
const Unavailable = "unavailable"

// Snapshot is the structured diagnostic evidence attached to a terminal
// failure. Immutable once created.
type Snapshot struct {
	CollectedAt time.Time         `json:"collectedAt"`
	Processes   string            `json:"processes"`
	Disk        string            `json:"disk"`
	Memory      string            `json:"memory"`
	SystemLog   string            `json:"systemLog"`
	Endpoints   map[string]string `json:"endpoints,omitempty"`
}

// JSON renders the snapshot for upload or logging. It never fails; an
// unmarshalable snapshot would be a programming error.
func (s Snapshot) JSON() []byte {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return []byte(fmt.Sprintf("{%q: %q}", "error", err.Error()))
	}
	return data
}

// Runner executes a shell command on the target machine.
type Runner interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Config holds collection parameters.
type Config struct {
	// JournalLines is how many recent system log lines to capture.
	JournalLines int

	// Endpoints are the URLs whose reachability is probed from the target.
	Endpoints []string
}

// Collector gathers snapshots from one target machine.
type Collector struct {
	runner Runner
	cfg    Config
}

// NewCollector creates a diagnostics collector.
func NewCollector(runner Runner, cfg Config) *Collector {
	if cfg.JournalLines <= 0 {
		cfg.JournalLines = 100
	}
	return &Collector{runner: runner, cfg: cfg}
}

// Collect gathers all sub-collections in parallel. It never returns an
// error; every task is fail-soft and RunParallel only propagates errors,
// which the tasks never produce.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{CollectedAt: time.Now()}

	tasks := []async.Task{
		{Name: "processes", Func: func(ctx context.Context) error {
			snap.Processes = c.run(ctx, `ps -eo pid,user,%cpu,%mem,args --sort=-%cpu | head -n 25`)
			return nil
		}},
		{Name: "disk", Func: func(ctx context.Context) error {
			snap.Disk = c.run(ctx, `df -h`)
			return nil
		}},
		{Name: "memory", Func: func(ctx context.Context) error {
			snap.Memory = c.run(ctx, `free -m`)
			return nil
		}},
		{Name: "systemLog", Func: func(ctx context.Context) error {
			snap.SystemLog = c.run(ctx, fmt.Sprintf(`journalctl --no-pager -n %d 2>/dev/null || tail -n %d /var/log/syslog 2>/dev/null`, c.cfg.JournalLines, c.cfg.JournalLines))
			return nil
		}},
	}

	if len(c.cfg.Endpoints) > 0 {
		snap.Endpoints = make(map[string]string, len(c.cfg.Endpoints))
		var mu sync.Mutex
		for _, url := range c.cfg.Endpoints {
			tasks = append(tasks, async.Task{Name: "endpoint", Func: func(ctx context.Context) error {
				status := c.run(ctx, fmt.Sprintf(`curl -fsI --connect-timeout 5 --max-time 10 -o /dev/null -w '%%{http_code}' %q`, url))
				mu.Lock()
				snap.Endpoints[url] = status
				mu.Unlock()
				return nil
			}})
		}
	}

	_ = async.RunParallel(ctx, tasks)
	return snap
}

// run executes one sub-collection, mapping any failure to Unavailable.
func (c *Collector) run(ctx context.Context, command string) string {
	out, err := c.runner.Execute(ctx, command)
	if err != nil {
		return Unavailable
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Unavailable
	}
	return out
}
