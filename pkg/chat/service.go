// Package chat sends a user message to the chat backend and streams the
// assistant reply as a growing message.
//
// The backend answers with named events: "connected" once, one "chunk" per
// content fragment (a JSON ChunkResponse) and "complete" at the end.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/sse"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/transcript"
	"github.com/papercomputeco/trickle/pkg/transport"
	"github.com/papercomputeco/trickle/pkg/worker"
)

const (
	// DefaultPath is the chat endpoint of the reference backend.
	DefaultPath = "/api/chat/query"

	// FailureMessage replaces the reply when the stream fails before any
	// content arrived.
	FailureMessage = "An error occurred while communicating with the server."

	eventConnected = "connected"
	eventChunk     = "chunk"
	eventComplete  = "complete"

	messageBuffer = 16
)

// Recorder receives every finished turn. *worker.Pool satisfies it.
type Recorder interface {
	Enqueue(job worker.Job) bool
}

// Service sends chat messages.
type Service struct {
	client      *transport.Client
	path        string
	logger      *zap.Logger
	recorder    Recorder
	sessionOpts []stream.Option
}

// Option configures a Service.
type Option func(*Service)

// WithPath overrides DefaultPath.
func WithPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.path = path
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger.OrNop(l)
	}
}

// WithRecorder records every finished turn.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithSessionOptions adds options to every session the service starts.
func WithSessionOptions(opts ...stream.Option) Option {
	return func(s *Service) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// NewService creates a new Service.
func NewService(client *transport.Client, opts ...Option) *Service {
	s := &Service{
		client: client,
		path:   DefaultPath,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewThreadID returns a fresh thread id.
func NewThreadID() string {
	return "chat-" + uuid.NewString()
}

// Send posts input to threadID and returns the assistant reply as a channel
// of snapshots: each message holds the whole content received so far. The
// channel is closed when the backend signals completion, the stream ends, or
// the returned session is cancelled. If the stream fails before any content
// arrived, a single message carrying FailureMessage is sent first.
// An empty threadID is replaced by NewThreadID.
func (s *Service) Send(ctx context.Context, input, threadID string) (<-chan Message, *stream.Session) {
	if threadID == "" {
		threadID = NewThreadID()
	}

	log := s.logger.With(zap.String("thread_id", threadID))

	t := &turn{
		out:     make(chan Message, messageBuffer),
		logger:  log,
		started: time.Now(),
	}

	req := transport.Request{
		Method: http.MethodPost,
		Path:   s.path,
		JSON: QueryRequest{
			Input:        input,
			MemoryConfig: MemoryConfig{Configurable: ConfigurableMemory{ThreadID: threadID}},
		},
	}

	opts := make([]stream.Option, 0, len(s.sessionOpts)+1)
	opts = append(opts, stream.WithLogger(log))
	opts = append(opts, s.sessionOpts...)

	session := stream.New(s.client.Source(req), sse.ModeRecord, t, opts...)
	t.session = session
	t.abort = session.Cancelled()

	session.Start(ctx)

	go func() {
		<-session.Done()
		// The turn is recorded before the channel closes, so a caller that
		// drained the channel may shut the recorder down.
		defer close(t.out)

		if s.recorder == nil {
			return
		}
		job := worker.Job{
			ThreadID:    threadID,
			Input:       input,
			Output:      t.content(),
			Backend:     s.client.BaseURL(),
			Path:        s.path,
			StartedAt:   t.started,
			CompletedAt: time.Now(),
			Events:      session.Delivered(),
			Outcome:     t.outcome(),
		}
		s.recorder.Enqueue(job)
	}()

	return t.out, session
}

// turn is the subscriber of one Send.
type turn struct {
	out     chan Message
	abort   <-chan struct{}
	session *stream.Session
	logger  *zap.Logger
	started time.Time

	mu       sync.Mutex
	buf      strings.Builder
	complete bool
}

func (t *turn) OnEvent(ev sse.Event) {
	switch ev.Name {
	case eventConnected:
		t.logger.Debug("chat stream connected", zap.String("data", ev.Data))

	case eventChunk:
		var chunk ChunkResponse
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			t.logger.Warn("skipping malformed chunk", zap.Error(err))
			return
		}
		if chunk.Content == nil {
			return
		}

		t.mu.Lock()
		t.buf.WriteString(*chunk.Content)
		content := t.buf.String()
		t.mu.Unlock()

		t.emit(content)

	case eventComplete:
		t.logger.Debug("chat stream complete")
		t.mu.Lock()
		t.complete = true
		t.mu.Unlock()

		// The backend may hold the connection open after completing.
		t.session.Cancel()

	default:
		t.logger.Debug("ignoring chat event", zap.String("event", ev.Name))
	}
}

func (t *turn) OnError(err error) {
	t.logger.Warn("chat stream failed", zap.Error(err))

	if t.content() == "" {
		t.emit(FailureMessage)
	}
}

func (t *turn) OnComplete() {}

func (t *turn) emit(content string) {
	msg := Message{
		Role:      transcript.RoleAssistant,
		Content:   content,
		Timestamp: t.started,
	}

	select {
	case t.out <- msg:
	case <-t.abort:
	}
}

func (t *turn) content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// outcome names how the turn ended. A turn closed by the backend's complete
// event counts as completed even though its session was cancelled.
func (t *turn) outcome() string {
	t.mu.Lock()
	complete := t.complete
	t.mu.Unlock()

	if complete {
		return stream.StateCompleted.String()
	}
	return t.session.State().String()
}
