// Package stream drives an sse.Decoder from a live producer and delivers the
// decoded events to exactly one subscriber.
//
// A Session moves through Idle → Active → {Completed, Failed, Cancelled}.
// Events are delivered synchronously from the session's single read loop, in
// exactly the order their bytes appeared on the wire. The read loop is the
// only owner of the decoder buffer, so a subscriber callback cannot re-enter
// it. Completion, failure and cancellation are terminal and mutually
// exclusive: at most one of OnComplete or OnError fires, and nothing fires
// after Cancel.
package stream

import (
	"context"
	"errors"
	"io"

	"github.com/papercomputeco/trickle/pkg/sse"
)

var (
	// ErrNoBody is returned when a producer opens successfully but has no
	// stream body to read.
	ErrNoBody = errors.New("stream: response has no body")

	// ErrCancelled is returned by Run and Wait when the session was cancelled
	// by the caller.
	ErrCancelled = errors.New("stream: session cancelled")
)

// Source is the producer side of a session: typically an HTTP response body.
// Open is called once when the session starts. The returned reader must deliver
// bytes in order, return io.EOF at end of stream and any other error on
// failure. Cancelling ctx must abort an outstanding Read or Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f(ctx).
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Subscriber receives the notifications of one session.
type Subscriber interface {
	// OnEvent is called once per decoded event, in stream order.
	OnEvent(ev sse.Event)

	// OnError is called at most once, when the transport fails.
	OnError(err error)

	// OnComplete is called at most once, after the last event of a stream
	// that ended normally.
	OnComplete()
}

// Handlers is a Subscriber built from optional callbacks.
type Handlers struct {
	Event    func(ev sse.Event)
	Error    func(err error)
	Complete func()
}

func (h Handlers) OnEvent(ev sse.Event) {
	if h.Event != nil {
		h.Event(ev)
	}
}

func (h Handlers) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h Handlers) OnComplete() {
	if h.Complete != nil {
		h.Complete()
	}
}
