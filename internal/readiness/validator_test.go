package readiness

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers commands by substring match, advancing per-command
// scripts so successive polls can observe different states.
type fakeRunner struct {
	scripts map[string][]response
	counts  map[string]int
}

type response struct {
	out string
	err error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{scripts: make(map[string][]response), counts: make(map[string]int)}
}

func (r *fakeRunner) on(substr string, responses ...response) {
	r.scripts[substr] = responses
}

func (r *fakeRunner) Execute(_ context.Context, command string) (string, error) {
	for substr, responses := range r.scripts {
		if !strings.Contains(command, substr) {
			continue
		}
		i := r.counts[substr]
		r.counts[substr]++
		if i >= len(responses) {
			i = len(responses) - 1 // sticky last response
		}
		return responses[i].out, responses[i].err
	}
	return "", errors.New("unexpected command: " + command)
}

func healthyRunner() *fakeRunner {
	r := newFakeRunner()
	r.on("cloud-init", response{out: "status: done"})
	r.on("df -Pm", response{out: "20480\n"})
	r.on("MemAvailable", response{out: "2048\n"})
	r.on("curl", response{out: "reachable\n"})
	return r
}

func testConfig() Config {
	return Config{
		MinDiskMB:    1024,
		MinMemoryMB:  256,
		ProbeURL:     "https://releases.example.com",
		PollInterval: 5 * time.Millisecond,
		Timeout:      200 * time.Millisecond,
	}
}

func TestWaitUntilReady_ImmediatelyReady(t *testing.T) {
	v := NewValidator(healthyRunner(), testConfig(), nil)

	state, err := v.WaitUntilReady(context.Background())

	require.NoError(t, err)
	assert.True(t, state.InitComplete)
	assert.Equal(t, 20480, state.DiskFreeMB)
	assert.Equal(t, 2048, state.MemFreeMB)
	assert.True(t, state.NetworkReachable)
	assert.False(t, state.CheckedAt.IsZero())
}

func TestWaitUntilReady_RequiresAllChecksInSamePoll(t *testing.T) {
	r := healthyRunner()
	// Init completes only on the third poll; everything else passes throughout.
	r.on("cloud-init",
		response{out: "status: running"},
		response{out: "status: running"},
		response{out: "status: done"},
	)
	v := NewValidator(r, testConfig(), nil)

	state, err := v.WaitUntilReady(context.Background())

	require.NoError(t, err)
	assert.True(t, state.InitComplete)
	assert.Equal(t, 3, r.counts["cloud-init"])
}

func TestWaitUntilReady_PermanentDiskFailureTimesOut(t *testing.T) {
	r := healthyRunner()
	r.on("df -Pm", response{err: errors.New("cannot stat /")})

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	v := NewValidator(r, cfg, nil)

	start := time.Now()
	state, err := v.WaitUntilReady(context.Background())
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, timeoutErr.LastState.DiskFreeMB)
	assert.True(t, timeoutErr.LastState.InitComplete, "last state carries the passing checks too")
	assert.Equal(t, state, timeoutErr.LastState)

	// Must time out at the ceiling, give or take one poll interval.
	assert.Less(t, elapsed, cfg.Timeout+cfg.PollInterval+20*time.Millisecond)
}

func TestWaitUntilReady_CheckErrorRetriedNextPoll(t *testing.T) {
	r := healthyRunner()
	// First memory check errors, second succeeds; an erroring check counts
	// as not ready rather than failing the wait.
	r.on("MemAvailable",
		response{err: errors.New("ssh hiccup")},
		response{out: "2048\n"},
	)
	v := NewValidator(r, testConfig(), nil)

	state, err := v.WaitUntilReady(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2048, state.MemFreeMB)
	assert.Equal(t, 2, r.counts["MemAvailable"])
}

func TestWaitUntilReady_Cancellation(t *testing.T) {
	r := healthyRunner()
	r.on("curl", response{out: ""}) // never reachable

	cfg := testConfig()
	cfg.Timeout = time.Hour
	v := NewValidator(r, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := v.WaitUntilReady(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheck_BelowFloorsNotReady(t *testing.T) {
	r := healthyRunner()
	r.on("df -Pm", response{out: "100\n"}) // below 1024 floor
	v := NewValidator(r, testConfig(), nil)

	state := v.Check(context.Background())
	assert.Equal(t, 100, state.DiskFreeMB)
	assert.False(t, v.ready(state))
}

func TestCheck_InitDisabledCountsAsComplete(t *testing.T) {
	r := healthyRunner()
	r.on("cloud-init", response{out: "status: disabled"})
	v := NewValidator(r, testConfig(), nil)

	state := v.Check(context.Background())
	assert.True(t, state.InitComplete)
}

func TestCheck_GarbageDiskOutput(t *testing.T) {
	r := healthyRunner()
	r.on("df -Pm", response{out: "df: /: No such file or directory"})
	v := NewValidator(r, testConfig(), nil)

	state := v.Check(context.Background())
	assert.Equal(t, 0, state.DiskFreeMB)
}
