package install

import (
	"time"

	"github.com/google/uuid"
)

// Run is the mutable per-invocation installation context. It is owned
// exclusively by one orchestrator run, mutated in place as attempts proceed,
// and discarded when the run terminates. No locking is needed because there
// is never a concurrent writer.
type Run struct {
	// ID uniquely identifies this run in logs and registration calls.
	ID string

	// Target identifies the machine being installed.
	Target string

	// MaxRetries bounds the per-step attempt count. Attempt never
	// exceeds it.
	MaxRetries int

	// Attempt is the attempt counter of the currently retried operation.
	Attempt int

	// StartedAt is when the run began.
	StartedAt time.Time

	// TotalWait accumulates time spent waiting: readiness polls,
	// contention polls, and retry backoff.
	TotalWait time.Duration

	// IdentityToken is the identity issued by the control plane once the
	// agent registers. Empty until verification completes.
	IdentityToken string

	// LastError is the terminal error record, set exactly once before the
	// run is reported as failed.
	LastError *ErrorRecord
}

// NewRun creates the context for one installation run.
func NewRun(target string, maxRetries int) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Target:     target,
		MaxRetries: maxRetries,
		StartedAt:  time.Now(),
	}
}
