// Package transport opens server-sent event streams over HTTP and exposes them
// as stream.Source producers.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/stream"
)

// DefaultTimeout bounds a whole request including the streamed body.
// Generated responses can be slow, so it is generous.
const DefaultTimeout = 5 * time.Minute

// Config is the client configuration.
type Config struct {
	// BaseURL is the backend root (e.g., "http://localhost:8000").
	BaseURL string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Header is added to every request.
	Header http.Header

	// HTTPClient replaces the default client. Timeout is ignored when set.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client issues stream requests against a single backend.
type Client struct {
	base       *url.URL
	header     http.Header
	httpClient *http.Client
	logger     *zap.Logger
}

// Request describes one stream request. Path is joined onto the base URL.
// A non-nil JSON value is encoded as the request body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Header http.Header
}

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:       base,
		header:     cfg.Header.Clone(),
		httpClient: httpClient,
		logger:     logger.OrNop(cfg.Logger),
	}, nil
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Source returns a stream.Source that performs req when opened.
func (c *Client) Source(req Request) stream.Source {
	return stream.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		return c.Open(ctx, req)
	})
}

// Open performs req and returns the response body of a successful stream.
// A non-2xx response yields a *StatusError; a response without a body yields
// stream.ErrNoBody. No retry is attempted.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("opening stream",
		zap.String("method", httpReq.Method),
		zap.String("url", httpReq.URL.String()),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		statusErr := newStatusError(resp)
		c.logger.Debug("stream request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", statusErr.Body),
		)
		return nil, statusErr
	}

	if resp.StatusCode == http.StatusNoContent || resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, stream.ErrNoBody
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Debug("stream response has unexpected content type",
			zap.String("content_type", ct),
		)
	}

	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.JSON != nil {
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	setRequestHeaders(httpReq, c.header, req.Header)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}
