package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/sse"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger.OrNop(l)
	}
}

// WithEventFilter restricts delivery to events with one of the given names.
// Other events are decoded and dropped. With no names, every event is
// delivered.
func WithEventFilter(names ...string) Option {
	return func(s *Session) {
		if len(names) == 0 {
			s.filter = nil
			return
		}
		s.filter = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.filter[n] = struct{}{}
		}
	}
}

// WithTee copies every raw byte read from the source to w.
func WithTee(w io.Writer) Option {
	return func(s *Session) {
		s.tee = w
	}
}

// WithMaxBufferSize caps the decoder's incomplete frame buffer.
func WithMaxBufferSize(n int) Option {
	return func(s *Session) {
		s.readerOpts = append(s.readerOpts, sse.WithDecoderOptions(sse.WithMaxBufferSize(n)))
	}
}

// WithReadSize sets the size of each Read issued against the source.
func WithReadSize(n int) Option {
	return func(s *Session) {
		s.readerOpts = append(s.readerOpts, sse.WithReadSize(n))
	}
}

// Session is one decode and dispatch run bound to a single stream request.
// Sessions share no state with each other.
type Session struct {
	src        Source
	mode       sse.Mode
	sub        Subscriber
	logger     *zap.Logger
	filter     map[string]struct{}
	tee        io.Writer
	readerOpts []sse.ReaderOption

	state atomic.Int32

	// dispatchMu is held by the read loop from the state check that admits
	// a callback until that callback returns.
	dispatchMu sync.Mutex
	loop       atomic.Uint64

	// mu guards cancel, which is set once when the session starts.
	mu     sync.Mutex
	cancel context.CancelFunc

	failure   error
	delivered atomic.Int64

	done      chan struct{}
	doneOnce  sync.Once
	abort     chan struct{}
	abortOnce sync.Once
}

// New returns an idle Session that will decode src with the given framing and
// notify sub. Nothing happens until Start or Run is called.
func New(src Source, mode sse.Mode, sub Subscriber, opts ...Option) *Session {
	if sub == nil {
		sub = Handlers{}
	}

	s := &Session{
		src:    src,
		mode:   mode,
		sub:    sub,
		logger: logger.Nop(),
		done:   make(chan struct{}),
		abort:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Delivered returns the number of events handed to the subscriber so far.
func (s *Session) Delivered() int64 {
	return s.delivered.Load()
}

// Done is closed once the session reached a terminal state and its read loop
// has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancelled is closed as soon as the session is cancelled, either through
// Cancel or through the context it was started with. It stays open for a
// session that completed or failed. Subscribers that may block inside a
// callback should select on it.
func (s *Session) Cancelled() <-chan struct{} {
	return s.abort
}

// Start opens the source and runs the read loop in a new goroutine.
// Calling Start on a session that is not idle does nothing.
// Cancelling ctx cancels the session.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateActive)) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	context.AfterFunc(ctx, s.contextDone)

	s.logger.Debug("stream session started", zap.Stringer("mode", s.mode))

	go s.run(ctx)
}

// Run starts the session and blocks until it ends. It returns nil when the
// stream completed, ErrCancelled when it was cancelled, and the transport
// failure otherwise.
func (s *Session) Run(ctx context.Context) error {
	s.Start(ctx)
	return s.Wait()
}

// Wait blocks until the session ends and returns the same result as Run.
// Wait on a session that is never started or cancelled blocks forever.
func (s *Session) Wait() error {
	<-s.done
	return s.Err()
}

// Err returns the result of a finished session, or nil while it is running.
func (s *Session) Err() error {
	switch s.State() {
	case StateFailed:
		return s.failure
	case StateCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Cancel stops the session: an outstanding read is aborted, buffered data is
// discarded and no subscriber callback starts once Cancel has returned. A
// callback already running on another goroutine is waited for. Cancel is
// idempotent and safe to call from any goroutine, including from within a
// callback.
func (s *Session) Cancel() {
	s.transitionCancelled()

	if s.loop.Load() != goroutineID() {
		s.dispatchMu.Lock()
		//nolint:staticcheck // waits for a running callback
		s.dispatchMu.Unlock()
	}
}

func (s *Session) transitionCancelled() {
	for {
		switch st := s.State(); st {
		case StateIdle:
			if s.state.CompareAndSwap(int32(StateIdle), int32(StateCancelled)) {
				s.closeAbort()
				s.closeDone()
				return
			}
		case StateActive:
			if s.state.CompareAndSwap(int32(StateActive), int32(StateCancelled)) {
				s.closeAbort()
				s.cancelContext()
				s.logger.Debug("stream session cancelled")
				return
			}
		default:
			return
		}
	}
}

func (s *Session) run(ctx context.Context) {
	s.loop.Store(goroutineID())
	defer s.closeDone()
	defer s.cancelContext()

	start := time.Now()
	defer func() {
		s.logger.Debug("stream session finished",
			zap.Stringer("state", s.State()),
			zap.Int64("events", s.Delivered()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	body, err := s.src.Open(ctx)
	if err != nil {
		s.fail(ctx, fmt.Errorf("opening stream: %w", err))
		return
	}
	if body == nil {
		s.fail(ctx, ErrNoBody)
		return
	}

	// Closing the body aborts a blocked Read for sources that ignore ctx.
	closeBody := sync.OnceFunc(func() { _ = body.Close() })
	defer closeBody()
	stop := context.AfterFunc(ctx, closeBody)
	defer stop()

	r := sse.NewTeeReader(body, s.tee, s.mode, s.readerOpts...)

	for {
		ev, err := r.Next()
		if err != nil {
			r.Discard()
			s.fail(ctx, fmt.Errorf("reading stream: %w", err))
			return
		}
		if ev == nil {
			break
		}

		if !s.deliver(ctx, *ev) {
			r.Discard()
			return
		}
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if s.active(ctx) && s.state.CompareAndSwap(int32(StateActive), int32(StateCompleted)) {
		s.sub.OnComplete()
	}
}

// deliver hands ev to the subscriber unless it is filtered out. It returns
// false once the session is no longer active.
func (s *Session) deliver(ctx context.Context, ev sse.Event) bool {
	if s.filter != nil {
		if _, ok := s.filter[ev.Name]; !ok {
			s.logger.Debug("dropping filtered event", zap.String("event", ev.Name))
			return s.active(ctx)
		}
	}

	s.dispatchMu.Lock()
	if !s.active(ctx) {
		s.dispatchMu.Unlock()
		return false
	}
	s.delivered.Add(1)
	s.sub.OnEvent(ev)
	s.dispatchMu.Unlock()

	return s.active(ctx)
}

// active reports whether delivery may continue. A cancelled parent context
// moves the session to StateCancelled.
func (s *Session) active(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.state.CompareAndSwap(int32(StateActive), int32(StateCancelled))
	}
	return s.State() == StateActive
}

// fail moves an active session to StateFailed and notifies the subscriber.
// Errors caused by cancellation are swallowed.
func (s *Session) fail(ctx context.Context, err error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if !s.active(ctx) {
		return
	}

	s.failure = err
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateFailed)) {
		return
	}

	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		s.logger.Debug("stream session failed", zap.Int("status", status.StatusCode()), zap.Error(err))
	} else {
		s.logger.Debug("stream session failed", zap.Error(err))
	}

	s.sub.OnError(err)
}

func (s *Session) cancelContext() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// contextDone runs when the session context ends. After the read loop exited
// it only releases the context.
func (s *Session) contextDone() {
	s.state.CompareAndSwap(int32(StateActive), int32(StateCancelled))
	if s.State() == StateCancelled {
		s.closeAbort()
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) closeAbort() {
	s.abortOnce.Do(func() { close(s.abort) })
}

// goroutineID returns the id of the calling goroutine, parsed from the
// "goroutine N [" header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
