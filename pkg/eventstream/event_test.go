package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/trickle/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals TurnRecordedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.TurnRecordedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnRecorded,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				Backend: "http://localhost:8080",
				Path:    "/api/chat/query",
			},
			StreamMeta: eventstream.StreamMeta{
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				DurationMs:  2000,
				Events:      5,
				Outcome:     "completed",
			},
			Turn: eventstream.Turn{
				ThreadID: "chat-1",
				Input:    "hello",
				Output:   "hi",
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("stream_meta"))
		Expect(got).To(HaveKey("turn"))
	})

	It("builds versioned events with unique ids", func() {
		a := eventstream.NewTurnRecordedEvent(eventstream.EventSource{Backend: "b"}, eventstream.StreamMeta{}, eventstream.Turn{ThreadID: "t"})
		b := eventstream.NewTurnRecordedEvent(eventstream.EventSource{Backend: "b"}, eventstream.StreamMeta{}, eventstream.Turn{ThreadID: "t"})

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal(eventstream.EventTypeTurnRecorded))
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt).To(BeTemporally("~", time.Now(), time.Second))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnRecorded).To(Equal("trickle.turn.recorded"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
