package contention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/agentup/internal/probe"
)

// scriptedProbe returns a fixed sequence of statuses, sticking on the last.
type scriptedProbe struct {
	statuses []probe.Status
	errs     []error
	calls    int
}

func (p *scriptedProbe) Status(context.Context) (probe.Status, error) {
	i := p.calls
	p.calls++
	if i >= len(p.statuses) {
		i = len(p.statuses) - 1
	}
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	s := p.statuses[i]
	s.CheckedAt = time.Now()
	return s, err
}

func busy(holders ...probe.LockHolder) probe.Status {
	return probe.Status{Busy: true, LockHolders: holders}
}

func idle() probe.Status {
	return probe.Status{}
}

func holder(pid int) probe.LockHolder {
	return probe.LockHolder{PID: pid, Command: "apt-get"}
}

func testConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, Timeout: 200 * time.Millisecond}
}

func TestWaitForClear_ClearOnFirstPoll(t *testing.T) {
	p := &scriptedProbe{statuses: []probe.Status{idle()}}
	m := NewMonitor(p, testConfig(), nil)

	start := time.Now()
	status, err := m.WaitForClear(context.Background())

	require.NoError(t, err)
	assert.False(t, status.Busy)
	assert.Equal(t, 1, p.calls)
	assert.Less(t, time.Since(start), 5*time.Millisecond, "no artificial delay on an idle machine")
}

func TestWaitForClear_BusyThenClears(t *testing.T) {
	p := &scriptedProbe{statuses: []probe.Status{
		busy(holder(1), holder(2), holder(3)),
		busy(holder(1), holder(2)),
		busy(holder(1)),
		idle(),
	}}
	m := NewMonitor(p, testConfig(), nil)

	status, err := m.WaitForClear(context.Background())

	require.NoError(t, err)
	assert.False(t, status.Busy)
	assert.Equal(t, 4, p.calls, "three busy polls then one clear poll")
}

func TestWaitForClear_TimeoutCarriesHolders(t *testing.T) {
	p := &scriptedProbe{statuses: []probe.Status{busy(holder(42), holder(43))}}
	cfg := Config{PollInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}
	m := NewMonitor(p, cfg, nil)

	status, err := m.WaitForClear(context.Background())

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Len(t, timeoutErr.LastStatus.LockHolders, 2)
	assert.Equal(t, 42, timeoutErr.LastStatus.LockHolders[0].PID)
	assert.Equal(t, status, timeoutErr.LastStatus)
}

func TestWaitForClear_EstimatesClearWhenShrinking(t *testing.T) {
	p := &scriptedProbe{statuses: []probe.Status{
		busy(holder(1), holder(2), holder(3), holder(4)),
		busy(holder(1), holder(2)),
		busy(holder(1)),
		idle(),
	}}
	m := NewMonitor(p, testConfig(), nil)

	// Capture the estimate by watching the statuses as they pass through.
	status, err := m.WaitForClear(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Busy)

	// Direct check of the estimator: 2 holders left, shrinking by 2 per poll.
	est := m.estimateClear(busy(holder(1), holder(2)), 4)
	require.NotNil(t, est.EstimatedClearAt)
	assert.WithinDuration(t, time.Now().Add(m.cfg.PollInterval), *est.EstimatedClearAt, 20*time.Millisecond)
}

func TestWaitForClear_NoEstimateWhenGrowing(t *testing.T) {
	m := NewMonitor(&scriptedProbe{statuses: []probe.Status{idle()}}, testConfig(), nil)

	est := m.estimateClear(busy(holder(1), holder(2), holder(3)), 2)
	assert.Nil(t, est.EstimatedClearAt)

	est = m.estimateClear(busy(holder(1)), -1) // first poll, no history
	assert.Nil(t, est.EstimatedClearAt)
}

func TestWaitForClear_ProbeErrorIsInconclusive(t *testing.T) {
	p := &scriptedProbe{
		statuses: []probe.Status{{}, idle()},
		errs:     []error{errors.New("ssh reset")},
	}
	m := NewMonitor(p, testConfig(), nil)

	status, err := m.WaitForClear(context.Background())

	require.NoError(t, err)
	assert.False(t, status.Busy)
	assert.Equal(t, 2, p.calls)
}

func TestWaitForClear_Cancellation(t *testing.T) {
	p := &scriptedProbe{statuses: []probe.Status{busy(holder(9))}}
	cfg := Config{PollInterval: 5 * time.Millisecond, Timeout: time.Hour}
	m := NewMonitor(p, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := m.WaitForClear(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
