package observe

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSON(&buf)

	obs.Event(Event{Stage: "readiness", Message: "ready", Duration: 1500 * time.Millisecond})
	obs.Event(Event{Stage: "installing", Attempt: 2, Message: "step failed"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "readiness", first["stage"])
	assert.Equal(t, "ready", first["msg"])
	assert.Equal(t, float64(1500), first["durationMs"])
	assert.Contains(t, first, "ts")

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, float64(2), second["attempt"])
}

func TestWithFields_AttachedToEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSON(&buf).WithFields(map[string]string{"runId": "abc123"})

	obs.Event(Event{Stage: "verifying", Message: "service healthy"})

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event))
	assert.Equal(t, "abc123", event["runId"])
	assert.Equal(t, "verifying", event["stage"])
}

func TestWithFields_EventFieldsWin(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSON(&buf).WithFields(map[string]string{"host": "ctx-host"})

	obs.Event(Event{Stage: "installing", Message: "x", Fields: map[string]string{"host": "event-host"}})

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event))
	assert.Equal(t, "event-host", event["host"])
}

func TestNop_DiscardsEvents(t *testing.T) {
	obs := Nop().WithFields(map[string]string{"k": "v"})
	// Must not panic.
	obs.Event(Event{Stage: "any", Message: "discarded"})
}
