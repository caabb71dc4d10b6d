package install

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/agentup/internal/contention"
	"github.com/imamik/agentup/internal/diagnostics"
	"github.com/imamik/agentup/internal/observe"
	"github.com/imamik/agentup/internal/platform/controlplane"
	"github.com/imamik/agentup/internal/probe"
	"github.com/imamik/agentup/internal/readiness"
	"github.com/imamik/agentup/internal/util/retry"
)

type fakeReadiness struct {
	err   error
	calls int
}

func (f *fakeReadiness) WaitUntilReady(context.Context) (readiness.SystemState, error) {
	f.calls++
	if f.err != nil {
		return readiness.SystemState{}, f.err
	}
	return readiness.SystemState{
		InitComplete:     true,
		DiskFreeMB:       4096,
		MemFreeMB:        1024,
		NetworkReachable: true,
		CheckedAt:        time.Now(),
	}, nil
}

type fakeContention struct {
	err   error
	calls int
}

func (f *fakeContention) WaitForClear(context.Context) (probe.Status, error) {
	f.calls++
	if f.err != nil {
		return probe.Status{Busy: true}, f.err
	}
	return probe.Status{CheckedAt: time.Now()}, nil
}

type fakeCollector struct {
	calls int
}

func (f *fakeCollector) Collect(context.Context) diagnostics.Snapshot {
	f.calls++
	return diagnostics.Snapshot{Processes: "ps output"}
}

type fakeRegistrar struct {
	resp  *controlplane.RegisterResponse
	errs  []error
	calls int
	last  controlplane.RegisterRequest
}

func (f *fakeRegistrar) Register(_ context.Context, req controlplane.RegisterRequest) (*controlplane.RegisterResponse, error) {
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.resp, nil
}

// scriptedStep fails with the queued errors before succeeding.
func scriptedStep(name string, errs ...error) (Step, *int) {
	calls := new(int)
	queue := errs
	return Step{Name: name, Run: func(context.Context) error {
		*calls++
		if len(queue) > 0 {
			err := queue[0]
			queue = queue[1:]
			return err
		}
		return nil
	}}, calls
}

func fastPolicy() retry.Policy {
	return retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: 3}
}

func testParams(run *Run) Params {
	return Params{
		Run:        run,
		Readiness:  &fakeReadiness{},
		Contention: &fakeContention{},
		Verify:     func(context.Context) error { return nil },
		Policy:     fastPolicy(),
		Observer:   observe.Nop(),
	}
}

func TestExecute_HappyPath(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	step, calls := scriptedStep("download-agent")
	p := testParams(run)
	p.Steps = []Step{step}
	p.Collector = &fakeCollector{}

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))

	assert.Equal(t, StateSucceeded, o.State())
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, run.Attempt)
	assert.Nil(t, run.LastError)
	assert.Equal(t, 0, p.Collector.(*fakeCollector).calls)
}

func TestExecute_WaitsOutContentionThenInstalls(t *testing.T) {
	// Real monitor with a scripted probe: busy for three polls, then clear.
	busy := probe.Status{Busy: true, LockHolders: []probe.LockHolder{{PID: 812, Command: "unattended-upgrade"}}}
	statuses := []probe.Status{busy, busy, busy, {}}
	scripted := probeFunc(func(context.Context) (probe.Status, error) {
		s := statuses[0]
		if len(statuses) > 1 {
			statuses = statuses[1:]
		}
		s.CheckedAt = time.Now()
		return s, nil
	})
	monitor := contention.NewMonitor(scripted, contention.Config{
		PollInterval: time.Millisecond,
		Timeout:      time.Second,
	}, observe.Nop())

	run := NewRun("10.0.0.4", 3)
	step, calls := scriptedStep("download-agent")
	p := testParams(run)
	p.Contention = monitor
	p.Steps = []Step{step}

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))
	assert.Equal(t, StateSucceeded, o.State())
	assert.Equal(t, 1, *calls)
}

type probeFunc func(ctx context.Context) (probe.Status, error)

func (f probeFunc) Status(ctx context.Context) (probe.Status, error) {
	return f(ctx)
}

func TestExecute_TransientStepFailuresRetryThenSucceed(t *testing.T) {
	run := NewRun("10.0.0.4", 5)
	transient := errors.New("E: Could not get lock /var/lib/dpkg/lock-frontend")
	step, calls := scriptedStep("install-dependencies", transient, transient)

	p := testParams(run)
	p.Policy = retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: 5}
	p.Steps = []Step{step}

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))

	assert.Equal(t, StateSucceeded, o.State())
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 3, run.Attempt)
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	run := NewRun("10.0.0.4", 2)
	transient := errors.New("connection reset by peer")
	step, calls := scriptedStep("download-agent", transient, transient, transient, transient)

	collector := &fakeCollector{}
	p := testParams(run)
	p.Policy = retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: 3}
	p.Steps = []Step{step}
	p.Collector = collector

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodePackageInstallFailed, rec.Code)
	assert.Equal(t, 12, rec.Code.ExitCode())
	require.NotNil(t, rec.Diagnostics)
	assert.Equal(t, 1, collector.calls)
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, 3, *calls)
	assert.Same(t, rec, run.LastError)
}

func TestExecute_FatalStepErrorSkipsRetries(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	step, calls := scriptedStep("download-agent",
		retry.Fatal(errors.New("The requested URL returned error: 404")))

	p := testParams(run)
	p.Steps = []Step{step}

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, *calls)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodePackageInstallFailed, rec.Code)
}

func TestExecute_ReadinessTimeout(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	collector := &fakeCollector{}
	p := testParams(run)
	p.Readiness = &fakeReadiness{err: &readiness.TimeoutError{Timeout: 10 * time.Minute}}
	p.Collector = collector

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodeSystemNotReady, rec.Code)
	assert.Equal(t, 10, rec.Code.ExitCode())
	assert.Equal(t, 1, collector.calls)
	assert.Equal(t, StateFailed, o.State())
	assert.NotEmpty(t, rec.RemediationHints)
}

func TestExecute_ContentionTimeout(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	p := testParams(run)
	p.Contention = &fakeContention{err: &contention.TimeoutError{Timeout: 5 * time.Minute}}

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodePackageManagerBusy, rec.Code)
	assert.Equal(t, 11, rec.Code.ExitCode())
}

func TestExecute_VerificationFailure(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	p := testParams(run)
	p.Policy = retry.Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 1}
	p.Verify = func(context.Context) error {
		return errors.New("service example-agent is not active: failed")
	}

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodeServiceVerificationFailed, rec.Code)
	assert.Equal(t, 13, rec.Code.ExitCode())
}

func TestExecute_CancellationProducesFailedState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := NewRun("10.0.0.4", 3)
	p := testParams(run)
	p.Readiness = &fakeReadiness{err: ctx.Err()}

	o := New(p)
	err := o.Execute(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, o.State())

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.NotNil(t, run.LastError)
	assert.Equal(t, rec, run.LastError)
}

func TestExecute_RegistrationStoresIdentityToken(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	registrar := &fakeRegistrar{
		resp: &controlplane.RegisterResponse{AgentID: "agt-1", IdentityToken: "tok-secret"},
		errs: []error{errors.New("502 bad gateway")},
	}

	p := testParams(run)
	p.Registrar = registrar
	p.AgentVersion = "1.4.2"

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))

	assert.Equal(t, "tok-secret", run.IdentityToken)
	assert.Equal(t, 2, registrar.calls)
	assert.Equal(t, run.ID, registrar.last.RunID)
	assert.Equal(t, "10.0.0.4", registrar.last.Hostname)
	assert.Equal(t, "1.4.2", registrar.last.AgentVersion)
}

func TestExecute_RegistrationRejectionFailsVerification(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	registrar := &fakeRegistrar{
		errs: []error{retry.Fatal(errors.New("registration rejected: status 401"))},
	}

	p := testParams(run)
	p.Registrar = registrar

	o := New(p)
	err := o.Execute(context.Background())
	require.Error(t, err)

	rec, ok := AsErrorRecord(err)
	require.True(t, ok)
	assert.Equal(t, CodeServiceVerificationFailed, rec.Code)
	assert.Equal(t, 1, registrar.calls)
}

func TestTransition_IllegalEdgePanics(t *testing.T) {
	o := New(testParams(NewRun("10.0.0.4", 3)))
	assert.Panics(t, func() { o.transition(StateVerifying) })
}

func TestExecute_TotalWaitAccumulates(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	p := testParams(run)
	o := New(p)
	require.NoError(t, o.Execute(context.Background()))
	assert.GreaterOrEqual(t, run.TotalWait, time.Duration(0))
}

func TestExecute_TotalWaitIncludesRetryBackoff(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	transient := errors.New("E: Could not get lock /var/lib/dpkg/lock")
	step, calls := scriptedStep("install-dependencies", transient, transient)

	p := testParams(run)
	p.Policy = retry.Policy{BaseDelay: 20 * time.Millisecond, MaxDelay: 40 * time.Millisecond, MaxAttempts: 3}
	p.Steps = []Step{step}

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))

	assert.Equal(t, 3, *calls)
	// Two backoff sleeps were consumed: 20ms then 40ms.
	assert.GreaterOrEqual(t, run.TotalWait, 60*time.Millisecond)
}

func TestNew_NilVerifyDefaultsToNoop(t *testing.T) {
	run := NewRun("10.0.0.4", 3)
	p := testParams(run)
	p.Verify = nil

	o := New(p)
	require.NoError(t, o.Execute(context.Background()))
	assert.Equal(t, StateSucceeded, o.State())
}
