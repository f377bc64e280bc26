package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/sse"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/transport"
)

// captured is the last request seen by a test backend.
type captured struct {
	mu     sync.Mutex
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

func (c *captured) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.method = r.Method
	c.path = r.URL.Path
	c.query = r.URL.Query()
	c.header = r.Header.Clone()
	c.body = body
}

func (c *captured) get() captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return captured{method: c.method, path: c.path, query: c.query, header: c.header, body: c.body}
}

// writeEvents streams each chunk with a flush in between.
func writeEvents(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	Expect(ok).To(BeTrue())

	for _, c := range chunks {
		fmt.Fprint(w, c)
		flusher.Flush()
	}
}

func newClient(baseURL string) *transport.Client {
	c, err := transport.New(transport.Config{BaseURL: baseURL, Logger: logger.Nop()})
	Expect(err).NotTo(HaveOccurred())
	return c
}

func collect(src stream.Source, mode sse.Mode) ([]sse.Event, error) {
	var events []sse.Event
	s := stream.New(src, mode, stream.Handlers{
		Event: func(ev sse.Event) { events = append(events, ev) },
	})
	err := s.Run(context.Background())
	return events, err
}

var _ = Describe("Client", func() {
	var (
		backend *httptest.Server
		seen    *captured
	)

	BeforeEach(func() {
		seen = &captured{}
	})

	AfterEach(func() {
		if backend != nil {
			backend.Close()
		}
	})

	Describe("New", func() {
		It("requires a base URL", func() {
			_, err := transport.New(transport.Config{})
			Expect(err).To(MatchError(ContainSubstring("base URL is required")))
		})

		It("rejects non-HTTP schemes", func() {
			_, err := transport.New(transport.Config{BaseURL: "ftp://example.com"})
			Expect(err).To(MatchError(ContainSubstring("unsupported base URL scheme")))
		})
	})

	Context("when the backend streams events", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen.record(r)
				writeEvents(w,
					"event: connected\ndata: {}\n\n",
					"event: chunk\ndata: {\"content\":\"Hel",
					"lo\"}\n\n",
					"event: complete\ndata: done\n\n",
				)
			}))
		})

		It("decodes events across flushes", func() {
			c := newClient(backend.URL)

			events, err := collect(c.Source(transport.Request{Path: "/api/chat/query"}), sse.ModeRecord)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]sse.Event{
				{Name: "connected", Data: "{}"},
				{Name: "chunk", Data: `{"content":"Hello"}`},
				{Name: "complete", Data: "done"},
			}))
		})

		It("asks for an uncached event stream", func() {
			c := newClient(backend.URL)

			_, err := collect(c.Source(transport.Request{Path: "/api/stream/llm"}), sse.ModeRecord)
			Expect(err).NotTo(HaveOccurred())

			req := seen.get()
			Expect(req.method).To(Equal(http.MethodGet))
			Expect(req.header.Get("Accept")).To(Equal("text/event-stream"))
			Expect(req.header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("encodes a JSON body", func() {
			c := newClient(backend.URL)

			_, err := collect(c.Source(transport.Request{
				Method: http.MethodPost,
				Path:   "/api/stream/text",
				JSON:   map[string]string{"text": "olá mundo"},
			}), sse.ModeLine)
			Expect(err).NotTo(HaveOccurred())

			req := seen.get()
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.header.Get("Content-Type")).To(Equal("application/json"))

			var body map[string]string
			Expect(json.Unmarshal(req.body, &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("text", "olá mundo"))
		})

		It("joins the path onto the base URL and encodes the query", func() {
			c := newClient(backend.URL + "/backend")

			_, err := collect(c.Source(transport.Request{
				Path:  "/api/stream/tokens",
				Query: url.Values{"prompt": {"a b&c"}},
			}), sse.ModeRecord)
			Expect(err).NotTo(HaveOccurred())

			req := seen.get()
			Expect(req.path).To(Equal("/backend/api/stream/tokens"))
			Expect(req.query.Get("prompt")).To(Equal("a b&c"))
		})

		It("sends client and request headers but never hop-by-hop ones", func() {
			c, err := transport.New(transport.Config{
				BaseURL: backend.URL,
				Header:  http.Header{"X-Client": {"trickle"}, "Authorization": {"Bearer a"}},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = collect(c.Source(transport.Request{
				Path:   "/",
				Header: http.Header{"Authorization": {"Bearer b"}, "Connection": {"close"}, "Accept": {"text/plain"}},
			}), sse.ModeRecord)
			Expect(err).NotTo(HaveOccurred())

			req := seen.get()
			Expect(req.header.Get("X-Client")).To(Equal("trickle"))
			Expect(req.header.Values("Authorization")).To(Equal([]string{"Bearer b"}))
			Expect(req.header.Get("Accept")).To(Equal("text/event-stream"))
		})
	})

	Context("when the backend rejects the request", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, strings.Repeat("x", 10_000), http.StatusServiceUnavailable)
			}))
		})

		It("fails the session with a status error", func() {
			c := newClient(backend.URL)

			var failures []error
			s := stream.New(c.Source(transport.Request{Path: "/api/stream/llm"}), sse.ModeRecord, stream.Handlers{
				Error: func(err error) { failures = append(failures, err) },
			})

			err := s.Run(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(failures).To(HaveLen(1))

			var statusErr *transport.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(statusErr.StatusCode()).To(Equal(http.StatusServiceUnavailable))
			Expect(len(statusErr.Body)).To(BeNumerically("<=", 4*1024))
			Expect(statusErr.Error()).To(ContainSubstring("503"))
		})
	})

	Context("when the backend has no content", func() {
		BeforeEach(func() {
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
		})

		It("fails with ErrNoBody", func() {
			c := newClient(backend.URL)

			_, err := collect(c.Source(transport.Request{Path: "/"}), sse.ModeRecord)
			Expect(err).To(MatchError(stream.ErrNoBody))
		})
	})

	Context("when the backend is unreachable", func() {
		It("fails the session", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			addr := dead.URL
			dead.Close()

			_, err := collect(newClient(addr).Source(transport.Request{Path: "/"}), sse.ModeRecord)
			Expect(err).To(HaveOccurred())
			Expect(err).NotTo(MatchError(stream.ErrCancelled))
		})
	})

	Context("when the stream never ends", func() {
		var released chan struct{}

		BeforeEach(func() {
			released = make(chan struct{})
			backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w, "data: first\n\n")
				<-r.Context().Done()
				close(released)
			}))
		})

		It("aborts the request on cancel", func() {
			c := newClient(backend.URL)

			got := make(chan sse.Event, 4)
			s := stream.New(c.Source(transport.Request{Path: "/"}), sse.ModeRecord, stream.Handlers{
				Event: func(ev sse.Event) { got <- ev },
			})
			s.Start(context.Background())

			Eventually(got).Should(Receive(Equal(sse.Event{Name: "message", Data: "first"})))
			s.Cancel()

			Expect(s.Wait()).To(MatchError(stream.ErrCancelled))
			Eventually(released).Should(BeClosed())
		})
	})
})
