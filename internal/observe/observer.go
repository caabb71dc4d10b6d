// Package observe defines the structured event sink used throughout an
// installation run.
//
// Every wait, attempt, and state transition is reported as an [Event] through
// an [Observer]. The sink is injected into the orchestrator rather than held
// as a singleton, so concurrent runs against different machines each hold
// their own handle.
package observe

import (
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// Event is a single structured log event. One event is emitted per line.
type Event struct {
	// Stage names the orchestrator stage the event belongs to,
	// e.g. "readiness", "contention", "installing".
	Stage string

	// Attempt is the one-based attempt number when the event relates to a
	// retried operation, zero otherwise.
	Attempt int

	// Message is the human-readable description.
	Message string

	// Duration is how long the reported operation took, zero if not timed.
	Duration time.Duration

	// Fields carries additional contextual key/value pairs.
	Fields map[string]string
}

// Observer receives structured events during a run.
type Observer interface {
	// Event emits a structured event.
	Event(e Event)

	// WithFields returns a new Observer that attaches the given fields to
	// every event it emits.
	WithFields(fields map[string]string) Observer
}

// logrObserver emits events through a logr.Logger.
type logrObserver struct {
	log           logr.Logger
	contextFields map[string]string
}

// NewLogr returns an Observer backed by the given logr.Logger.
func NewLogr(log logr.Logger) Observer {
	return &logrObserver{log: log}
}

// NewJSON returns an Observer that writes one JSON object per event to w,
// with fields {ts, stage, attempt, message, durationMs, ...}.
func NewJSON(w io.Writer) Observer {
	log := funcr.NewJSON(func(obj string) {
		_, _ = io.WriteString(w, obj+"\n")
	}, funcr.Options{
		LogTimestamp:    true,
		TimestampFormat: time.RFC3339Nano,
	})
	return NewLogr(log)
}

// Event implements Observer.
func (o *logrObserver) Event(e Event) {
	kv := make([]any, 0, 8+2*len(e.Fields)+2*len(o.contextFields))
	kv = append(kv, "stage", e.Stage, "attempt", e.Attempt, "durationMs", e.Duration.Milliseconds())
	for k, v := range o.contextFields {
		if _, shadowed := e.Fields[k]; shadowed {
			continue
		}
		kv = append(kv, k, v)
	}
	for k, v := range e.Fields {
		kv = append(kv, k, v)
	}
	o.log.Info(e.Message, kv...)
}

// WithFields implements Observer.
func (o *logrObserver) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logrObserver{log: o.log, contextFields: merged}
}

// nopObserver discards all events.
type nopObserver struct{}

// Nop returns an Observer that discards all events.
func Nop() Observer {
	return nopObserver{}
}

func (nopObserver) Event(Event) {}

func (nopObserver) WithFields(map[string]string) Observer { return nopObserver{} }
