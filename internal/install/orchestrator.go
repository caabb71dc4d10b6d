// Package install drives the installation state machine for one target
// machine.
//
// The orchestrator sequences readiness validation, package-manager contention
// waiting, the install steps (each wrapped by the retry executor), and
// post-install verification, emitting structured events throughout. Any
// terminal failure carries exactly one ErrorRecord with a diagnostics
// snapshot. The machine is not resumable: a fresh invocation starts from
// Start, relying on the steps being idempotent.
package install

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/agentup/internal/diagnostics"
	"github.com/imamik/agentup/internal/observe"
	"github.com/imamik/agentup/internal/platform/controlplane"
	"github.com/imamik/agentup/internal/probe"
	"github.com/imamik/agentup/internal/readiness"
	"github.com/imamik/agentup/internal/util/retry"
)

// ReadinessWaiter blocks until the machine is ready for installation work.
type ReadinessWaiter interface {
	WaitUntilReady(ctx context.Context) (readiness.SystemState, error)
}

// ContentionWaiter blocks until package-manager contention clears.
type ContentionWaiter interface {
	WaitForClear(ctx context.Context) (probe.Status, error)
}

// SnapshotCollector gathers diagnostic evidence on terminal failure.
type SnapshotCollector interface {
	Collect(ctx context.Context) diagnostics.Snapshot
}

// Registrar registers the installed agent with the control plane.
type Registrar interface {
	Register(ctx context.Context, req controlplane.RegisterRequest) (*controlplane.RegisterResponse, error)
}

// Params wires one orchestrator run.
type Params struct {
	Run        *Run
	Readiness  ReadinessWaiter
	Contention ContentionWaiter

	// Steps are executed in order during Installing, each under Policy.
	Steps []Step

	// Verify checks the installed service health during Verifying.
	Verify func(ctx context.Context) error

	// Registrar is optional; when nil the registration call is skipped
	// (air-gapped installs).
	Registrar Registrar

	// AgentVersion is reported to the control plane on registration.
	AgentVersion string

	// Collector is optional; when nil no diagnostics snapshot is attached.
	Collector SnapshotCollector

	Policy   retry.Policy
	Observer observe.Observer
}

// Orchestrator runs the installation state machine to completion.
type Orchestrator struct {
	run        *Run
	readiness  ReadinessWaiter
	contention ContentionWaiter
	steps      []Step
	verify     func(ctx context.Context) error
	registrar  Registrar
	version    string
	collector  SnapshotCollector
	policy     retry.Policy
	obs        observe.Observer
	state      State
}

// New creates an orchestrator for one run.
func New(p Params) *Orchestrator {
	obs := p.Observer
	if obs == nil {
		obs = observe.Nop()
	}
	if p.Run != nil {
		obs = obs.WithFields(map[string]string{"runId": p.Run.ID, "target": p.Run.Target})
	}
	verify := p.Verify
	if verify == nil {
		verify = func(context.Context) error { return nil }
	}
	return &Orchestrator{
		run:        p.Run,
		readiness:  p.Readiness,
		contention: p.Contention,
		steps:      p.Steps,
		verify:     verify,
		registrar:  p.Registrar,
		version:    p.AgentVersion,
		collector:  p.Collector,
		policy:     p.Policy,
		obs:        obs,
		state:      StateStart,
	}
}

// State returns the machine's current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Execute runs the state machine to a terminal state. It returns nil on
// Succeeded and the run's *ErrorRecord on Failed.
func (o *Orchestrator) Execute(ctx context.Context) error {
	o.transition(StateValidatingReadiness)
	waitStart := time.Now()
	if _, err := o.readiness.WaitUntilReady(ctx); err != nil {
		o.run.TotalWait += time.Since(waitStart)
		return o.fail(ctx, CodeSystemNotReady, err)
	}
	o.run.TotalWait += time.Since(waitStart)

	o.transition(StateAwaitingPackageManager)
	waitStart = time.Now()
	if _, err := o.contention.WaitForClear(ctx); err != nil {
		o.run.TotalWait += time.Since(waitStart)
		return o.fail(ctx, CodePackageManagerBusy, err)
	}
	o.run.TotalWait += time.Since(waitStart)

	o.transition(StateInstalling)
	for _, step := range o.steps {
		if err := o.runStep(ctx, step); err != nil {
			return o.fail(ctx, CodePackageInstallFailed, fmt.Errorf("step %s: %w", step.Name, err))
		}
	}

	o.transition(StateVerifying)
	if err := o.runStep(ctx, Step{Name: "verify-service", Run: o.verify}); err != nil {
		return o.fail(ctx, CodeServiceVerificationFailed, err)
	}
	if err := o.register(ctx); err != nil {
		return o.fail(ctx, CodeServiceVerificationFailed, err)
	}

	o.transition(StateSucceeded)
	o.obs.Event(observe.Event{
		Stage:    string(StateSucceeded),
		Message:  "installation succeeded",
		Duration: time.Since(o.run.StartedAt),
	})
	return nil
}

// backoffMeter folds the time slept between retry attempts into the run's
// total wait. end marks an attempt finishing; begin, called as the next
// attempt starts, accounts the gap in between, which is the backoff sleep.
type backoffMeter struct {
	run     *Run
	lastEnd time.Time
}

func (m *backoffMeter) begin() {
	if !m.lastEnd.IsZero() {
		m.run.TotalWait += time.Since(m.lastEnd)
	}
}

func (m *backoffMeter) end() {
	m.lastEnd = time.Now()
}

// runStep executes one step under the retry policy, keeping the run's
// attempt counter authoritative and emitting per-attempt events.
func (o *Orchestrator) runStep(ctx context.Context, step Step) error {
	start := time.Now()
	meter := &backoffMeter{run: o.run}
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		meter.begin()
		return step.Run(ctx)
	}, retry.WithOnAttempt(func(attempt int, attemptErr error) {
		meter.end()
		o.run.Attempt = attempt
		if attemptErr != nil {
			o.obs.Event(observe.Event{
				Stage:   string(o.state),
				Attempt: attempt,
				Message: fmt.Sprintf("%s failed: %v", step.Name, attemptErr),
			})
		}
	}))
	if err != nil {
		return err
	}
	o.obs.Event(observe.Event{
		Stage:    string(o.state),
		Attempt:  o.run.Attempt,
		Message:  step.Name + " completed",
		Duration: time.Since(start),
	})
	return nil
}

// register reports the installed agent to the control plane and stores the
// issued identity token on the run.
func (o *Orchestrator) register(ctx context.Context) error {
	if o.registrar == nil {
		return nil
	}

	req := controlplane.RegisterRequest{
		RunID:        o.run.ID,
		Hostname:     o.run.Target,
		AgentVersion: o.version,
	}

	var resp *controlplane.RegisterResponse
	meter := &backoffMeter{run: o.run}
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		meter.begin()
		var regErr error
		resp, regErr = o.registrar.Register(ctx, req)
		return regErr
	}, retry.WithOnAttempt(func(attempt int, _ error) {
		meter.end()
		o.run.Attempt = attempt
	}))
	if err != nil {
		return fmt.Errorf("control plane registration: %w", err)
	}

	o.run.IdentityToken = resp.IdentityToken
	return nil
}

// transition moves the machine forward, emitting a stage event. Illegal
// transitions indicate a sequencing bug and panic rather than mask it.
func (o *Orchestrator) transition(next State) {
	if !o.state.CanTransition(next) {
		panic(fmt.Sprintf("illegal state transition %s -> %s", o.state, next))
	}
	o.state = next
	o.obs.Event(observe.Event{
		Stage:   string(next),
		Message: "entering stage",
	})
}

// fail moves to Failed, collecting diagnostics and attaching the single
// ErrorRecord for the run. Diagnostics collection uses a detached context so
// an external cancellation still leaves evidence behind.
func (o *Orchestrator) fail(ctx context.Context, code Code, cause error) *ErrorRecord {
	var snapshot *diagnostics.Snapshot
	if o.collector != nil {
		s := o.collector.Collect(context.WithoutCancel(ctx))
		snapshot = &s
	}

	rec := newErrorRecord(code, cause, snapshot)
	o.run.LastError = rec
	o.state = StateFailed

	o.obs.Event(observe.Event{
		Stage:    string(StateFailed),
		Attempt:  o.run.Attempt,
		Message:  rec.Error(),
		Duration: time.Since(o.run.StartedAt),
		Fields:   map[string]string{"code": string(code)},
	})
	return rec
}
