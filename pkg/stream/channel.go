package stream

import (
	"context"

	"github.com/papercomputeco/trickle/pkg/sse"
)

// NotificationKind tells which subscriber callback produced a Notification.
type NotificationKind int

const (
	KindEvent NotificationKind = iota
	KindError
	KindComplete
)

func (k NotificationKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Notification is one subscriber callback in channel form.
type Notification struct {
	Kind  NotificationKind
	Event sse.Event
	Err   error
}

// channelSubscriber forwards callbacks to a channel. A send blocks until the
// consumer receives or the session is cancelled.
type channelSubscriber struct {
	out   chan Notification
	abort <-chan struct{}
}

func (c *channelSubscriber) send(n Notification) {
	select {
	case c.out <- n:
	case <-c.abort:
	}
}

func (c *channelSubscriber) OnEvent(ev sse.Event) {
	c.send(Notification{Kind: KindEvent, Event: ev})
}

func (c *channelSubscriber) OnError(err error) {
	c.send(Notification{Kind: KindError, Err: err})
}

func (c *channelSubscriber) OnComplete() {
	c.send(Notification{Kind: KindComplete})
}

// Stream starts a session over src and returns its notifications as a
// channel with the given buffer size. The channel is closed once the session
// ends. A cancelled session closes the channel without a terminal
// notification.
func Stream(ctx context.Context, src Source, mode sse.Mode, size int, opts ...Option) (<-chan Notification, *Session) {
	if size < 0 {
		size = 0
	}

	sub := &channelSubscriber{out: make(chan Notification, size)}
	s := New(src, mode, sub, opts...)
	sub.abort = s.Cancelled()

	s.Start(ctx)
	go func() {
		<-s.Done()
		close(sub.out)
	}()

	return sub.out, s
}
