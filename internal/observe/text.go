package observe

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// textObserver writes human-readable one-line events, for interactive runs
// where the JSON sink is too noisy.
type textObserver struct {
	w             io.Writer
	contextFields map[string]string
	now           func() time.Time
}

// NewText returns an Observer that writes one plain-text line per event to w.
func NewText(w io.Writer) Observer {
	return &textObserver{w: w, now: time.Now}
}

// Event prints the event on one line. Context fields from WithFields are
// omitted; they repeat on every line and belong in the JSON sink.
func (o *textObserver) Event(e Event) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] %s", o.now().Format("15:04:05"), e.Stage, e.Message)
	if e.Attempt > 0 {
		fmt.Fprintf(&sb, " (attempt %d)", e.Attempt)
	}
	if e.Duration > 0 {
		fmt.Fprintf(&sb, " (%s)", e.Duration.Round(time.Millisecond))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%s", k, e.Fields[k])
	}

	fmt.Fprintln(o.w, sb.String())
}

func (o *textObserver) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &textObserver{w: o.w, contextFields: merged, now: o.now}
}
