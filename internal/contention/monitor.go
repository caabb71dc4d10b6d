// Package contention waits for package-manager lock contention on the target
// machine to clear.
//
// Contention is typically transient (unattended upgrades, first-boot
// maintenance), so the monitor polls on a fixed short interval and reports
// who holds the locks and whether the holder set is shrinking. On timeout the
// final holder list is surfaced so an operator can intervene.
package contention

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/imamik/agentup/internal/observe"
	"github.com/imamik/agentup/internal/probe"
)

// Config holds the contention wait parameters.
type Config struct {
	// PollInterval is the fixed delay between probes.
	PollInterval time.Duration

	// Timeout is the overall ceiling for the wait.
	Timeout time.Duration
}

// TimeoutError reports that contention never cleared within the ceiling.
// LastStatus carries the final lock-holder list as diagnostic evidence.
type TimeoutError struct {
	LastStatus probe.Status
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("package manager still busy after %v: %d lock holder(s)",
		e.Timeout, len(e.LastStatus.LockHolders))
}

// Monitor polls a probe until no package-manager activity remains.
type Monitor struct {
	probe probe.Probe
	cfg   Config
	obs   observe.Observer
}

// NewMonitor creates a contention monitor for one target machine.
func NewMonitor(p probe.Probe, cfg Config, obs observe.Observer) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if obs == nil {
		obs = observe.Nop()
	}
	return &Monitor{probe: p, cfg: cfg, obs: obs}
}

// WaitForClear polls until the probe reports no package-manager activity.
// A clear probe on the first poll returns immediately with no artificial
// delay. It returns a *TimeoutError carrying the final status once the
// ceiling passes, or the context error on cancellation.
//
// A probe error counts as an inconclusive poll: the monitor keeps waiting
// rather than failing the run on a transient inspection problem.
func (m *Monitor) WaitForClear(ctx context.Context) (probe.Status, error) {
	start := time.Now()
	deadline := start.Add(m.cfg.Timeout)

	var last probe.Status
	prevHolders := -1

	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		status, err := m.probe.Status(ctx)
		if err != nil {
			m.obs.Event(observe.Event{
				Stage:   "contention",
				Message: "probe failed, treating as inconclusive",
				Fields:  map[string]string{"error": err.Error()},
			})
		} else {
			last = m.estimateClear(status, prevHolders)
			prevHolders = len(status.LockHolders)

			if !last.Busy {
				m.obs.Event(observe.Event{
					Stage:    "contention",
					Message:  "package manager clear",
					Duration: time.Since(start),
				})
				return last, nil
			}

			m.obs.Event(observe.Event{
				Stage:   "contention",
				Message: "package manager busy, waiting",
				Fields:  busyFields(last),
			})
		}

		if !time.Now().Add(m.cfg.PollInterval).Before(deadline) {
			return last, &TimeoutError{LastStatus: last, Timeout: m.cfg.Timeout}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// estimateClear derives EstimatedClearAt from a simple moving observation of
// whether the holder set is shrinking. With n holders left and a shrink rate
// of r holders per poll, the set clears in roughly n/r more polls.
func (m *Monitor) estimateClear(status probe.Status, prevHolders int) probe.Status {
	n := len(status.LockHolders)
	if n == 0 || prevHolders < 0 || prevHolders <= n {
		return status
	}
	rate := prevHolders - n
	polls := (n + rate - 1) / rate
	eta := time.Now().Add(time.Duration(polls) * m.cfg.PollInterval)
	status.EstimatedClearAt = &eta
	return status
}

func busyFields(s probe.Status) map[string]string {
	fields := map[string]string{
		"lockHolders": strconv.Itoa(len(s.LockHolders)),
	}
	for i, h := range s.LockHolders {
		if i >= 3 {
			fields["more"] = strconv.Itoa(len(s.LockHolders) - 3)
			break
		}
		fields[fmt.Sprintf("holder%d", i)] = fmt.Sprintf("%d %s", h.PID, h.Command)
	}
	if s.EstimatedClearAt != nil {
		fields["estimatedClearAt"] = s.EstimatedClearAt.Format(time.RFC3339)
	}
	return fields
}
