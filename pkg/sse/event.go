// Package sse provides an incremental Server-Sent Events decoder for use by
// trickle stream sessions. It takes a byte stream that arrives in arbitrary
// chunks, reframes it on protocol boundaries and yields decoded events without
// losing, duplicating or reordering data.
//
// Two framings are supported:
//
//   - ModeLine: every "\n"-terminated line beginning with "data:" carries one
//     payload. There is no event grouping. This is the shape used by
//     POST-initiated text streams.
//   - ModeRecord: records are separated by a blank line and may carry "event:",
//     "data:" and "id:" fields, as an EventSource would read them.
//
// Reconnection, "retry:" and Last-Event-ID are not handled.
//
// Wire format: https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DefaultEventName is the event name used when a record has no "event:" field.
const DefaultEventName = "message"

// Event represents a single decoded SSE event.
type Event struct {
	// Name is the SSE event type from the "event:" field. It is never empty:
	// records without an "event:" field (and all line mode events) use
	// DefaultEventName.
	Name string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with a single "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
