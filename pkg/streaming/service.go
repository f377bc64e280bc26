// Package streaming exposes the backend's demo streams: a posted text that is
// echoed back line by line, a token stream and a simulated model response.
package streaming

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/sse"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/transport"
)

// Paths are the backend endpoints of each stream.
type Paths struct {
	Text   string
	Tokens string
	LLM    string
}

// DefaultPaths returns the endpoints served by the reference backend.
func DefaultPaths() Paths {
	return Paths{
		Text:   "/api/stream/text",
		Tokens: "/api/stream/tokens",
		LLM:    "/api/stream/llm",
	}
}

// Service starts stream sessions against one backend.
type Service struct {
	client      *transport.Client
	paths       Paths
	logger      *zap.Logger
	sessionOpts []stream.Option
}

// Option configures a Service.
type Option func(*Service)

// WithPaths overrides the endpoints. Empty fields keep their default.
func WithPaths(p Paths) Option {
	return func(s *Service) {
		if p.Text != "" {
			s.paths.Text = p.Text
		}
		if p.Tokens != "" {
			s.paths.Tokens = p.Tokens
		}
		if p.LLM != "" {
			s.paths.LLM = p.LLM
		}
	}
}

// WithLogger sets the service logger. Sessions inherit it.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger.OrNop(l)
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
		paths:  DefaultPaths(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type textRequest struct {
	Text string `json:"text"`
}

// StreamText posts text and streams the reply in line framing: every
// "data:" line is one fragment. The returned session is already started.
func (s *Service) StreamText(ctx context.Context, text string, sub stream.Subscriber) *stream.Session {
	req := transport.Request{
		Method: http.MethodPost,
		Path:   s.paths.Text,
		JSON:   textRequest{Text: text},
	}
	return s.start(ctx, "text", req, sse.ModeLine, sub)
}

// TokenStream streams tokens for prompt. An empty prompt lets the backend
// pick its own. Only unnamed ("message") events are delivered.
func (s *Service) TokenStream(ctx context.Context, prompt string, sub stream.Subscriber) *stream.Session {
	req := transport.Request{Path: s.paths.Tokens}
	if prompt != "" {
		req.Query = url.Values{"prompt": {prompt}}
	}
	return s.start(ctx, "tokens", req, sse.ModeRecord, sub, stream.WithEventFilter(sse.DefaultEventName))
}

// LLMStream streams the simulated model response word by word. Only unnamed
// ("message") events are delivered.
func (s *Service) LLMStream(ctx context.Context, sub stream.Subscriber) *stream.Session {
	req := transport.Request{Path: s.paths.LLM}
	return s.start(ctx, "llm", req, sse.ModeRecord, sub, stream.WithEventFilter(sse.DefaultEventName))
}

func (s *Service) start(ctx context.Context, name string, req transport.Request, mode sse.Mode, sub stream.Subscriber, extra ...stream.Option) *stream.Session {
	log := s.logger.With(zap.String("stream", name))

	opts := make([]stream.Option, 0, len(s.sessionOpts)+len(extra)+1)
	opts = append(opts, stream.WithLogger(log))
	opts = append(opts, s.sessionOpts...)
	opts = append(opts, extra...)

	session := stream.New(s.client.Source(req), mode, sub, opts...)
	session.Start(ctx)

	return session
}
