// Package eventstream describes the events emitted for recorded chat turns and
// the publishers that deliver them.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnRecorded is emitted after a chat turn is recorded.
	EventTypeTurnRecorded = "trickle.turn.recorded"
)

// TurnRecordedEvent is a transport-neutral event payload for a recorded turn.
type TurnRecordedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	StreamMeta    StreamMeta  `json:"stream_meta"`
	Turn          Turn        `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Backend string `json:"backend"`
	Path    string `json:"path,omitempty"`
}

// StreamMeta captures stream lifecycle metadata for the event.
type StreamMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Events      int64     `json:"events"`

	// Outcome is the final session state ("completed", "failed", "cancelled").
	Outcome string `json:"outcome"`
}

// Turn is the user input and the assistant output of one exchange.
type Turn struct {
	ThreadID string `json:"thread_id"`
	Input    string `json:"input"`
	Output   string `json:"output"`
}

// NewTurnRecordedEvent returns a V1 event with a fresh id emitted now.
func NewTurnRecordedEvent(source EventSource, meta StreamMeta, turn Turn) *TurnRecordedEvent {
	return &TurnRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnRecorded,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		StreamMeta:    meta,
		Turn:          turn,
	}
}
