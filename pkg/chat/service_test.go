package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/trickle/pkg/chat"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/transport"
	"github.com/papercomputeco/trickle/pkg/worker"
)

// jobRecorder collects recorded turns.
type jobRecorder struct {
	jobs chan worker.Job
}

func (r *jobRecorder) Enqueue(job worker.Job) bool {
	r.jobs <- job
	return true
}

func contents(msgs <-chan chat.Message) []string {
	var out []string
	for m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

var _ = Describe("Service", func() {
	var (
		backend  *httptest.Server
		handler  http.HandlerFunc
		received chan chat.QueryRequest
		svc      *chat.Service
		rec      *jobRecorder
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		received = make(chan chat.QueryRequest, 1)
		rec = &jobRecorder{jobs: make(chan worker.Job, 1)}

		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal(chat.DefaultPath))

			var q chat.QueryRequest
			Expect(json.NewDecoder(r.Body).Decode(&q)).To(Succeed())
			received <- q

			handler(w, r)
		}))

		client, err := transport.New(transport.Config{BaseURL: backend.URL})
		Expect(err).NotTo(HaveOccurred())
		svc = chat.NewService(client, chat.WithRecorder(rec))
	})

	AfterEach(func() {
		backend.Close()
	})

	writeEvents := func(w http.ResponseWriter, chunks ...string) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			flusher.Flush()
		}
	}

	Context("when the backend answers with chunks", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w,
					"event: connected\ndata: {\"thread_id\":\"t1\"}\n\n",
					"event: chunk\ndata: {\"content\":\"Hel\",\"meta\":{\"ls_model_name\":\"m\"}}\n\n",
					"event: chunk\ndata: {\"content\":\"lo\"}\n\n",
					"event: chunk\ndata: {\"meta\":{}}\n\n",
					"event: complete\ndata: done\n\n",
				)
				// Hold the connection open until the client hangs up.
				<-r.Context().Done()
			}
		})

		It("emits a growing snapshot per chunk and closes on complete", func() {
			msgs, _ := svc.Send(ctx, "hi", "t1")

			Expect(contents(msgs)).To(Equal([]string{"Hel", "Hello"}))
		})

		It("sends the input and thread id", func() {
			msgs, _ := svc.Send(ctx, "olá", "t1")
			contents(msgs)

			var q chat.QueryRequest
			Eventually(received).Should(Receive(&q))
			Expect(q.Input).To(Equal("olá"))
			Expect(q.MemoryConfig.Configurable.ThreadID).To(Equal("t1"))
		})

		It("generates a thread id when none is given", func() {
			msgs, _ := svc.Send(ctx, "hi", "")
			contents(msgs)

			var q chat.QueryRequest
			Eventually(received).Should(Receive(&q))
			Expect(q.MemoryConfig.Configurable.ThreadID).To(HavePrefix("chat-"))
		})

		It("records the completed turn", func() {
			msgs, _ := svc.Send(ctx, "hi", "t1")
			contents(msgs)

			var job worker.Job
			Eventually(rec.jobs).Should(Receive(&job))
			Expect(job.ThreadID).To(Equal("t1"))
			Expect(job.Input).To(Equal("hi"))
			Expect(job.Output).To(Equal("Hello"))
			Expect(job.Outcome).To(Equal("completed"))
			Expect(job.Path).To(Equal(chat.DefaultPath))
			Expect(job.Events).To(Equal(int64(5)))
		})

		It("marks messages as assistant messages with a stable timestamp", func() {
			msgs, _ := svc.Send(ctx, "hi", "t1")

			var all []chat.Message
			for m := range msgs {
				all = append(all, m)
			}
			Expect(all).To(HaveLen(2))
			Expect(all[0].Role).To(Equal("assistant"))
			Expect(all[0].Timestamp).To(Equal(all[1].Timestamp))
		})
	})

	Context("when a chunk is malformed", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w,
					"event: chunk\ndata: {\"content\":\"a\"}\n\n",
					"event: chunk\ndata: {not json\n\n",
					"event: chunk\ndata: {\"content\":\"b\"}\n\n",
				)
			}
		})

		It("skips it and closes at end of stream", func() {
			msgs, session := svc.Send(ctx, "hi", "t1")

			Expect(contents(msgs)).To(Equal([]string{"a", "ab"}))
			Expect(session.State()).To(Equal(stream.StateCompleted))
		})
	})

	Context("when the backend fails before any content", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			}
		})

		It("emits the failure message once and closes", func() {
			msgs, session := svc.Send(ctx, "hi", "t1")

			Expect(contents(msgs)).To(Equal([]string{chat.FailureMessage}))
			Expect(session.State()).To(Equal(stream.StateFailed))

			var job worker.Job
			Eventually(rec.jobs).Should(Receive(&job))
			Expect(job.Output).To(BeEmpty())
			Expect(job.Outcome).To(Equal("failed"))
		})
	})

	Context("when the stream breaks after content", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				hj, ok := w.(http.Hijacker)
				Expect(ok).To(BeTrue())
				conn, buf, err := hj.Hijack()
				Expect(err).NotTo(HaveOccurred())

				// Chunked response that is cut off mid-stream.
				body := "event: chunk\ndata: {\"content\":\"partial\"}\n\n"
				fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n%x\r\n%s\r\n", len(body), body)
				Expect(buf.Flush()).To(Succeed())
				conn.Close()
			}
		})

		It("keeps the content and adds no failure message", func() {
			msgs, session := svc.Send(ctx, "hi", "t1")

			got := contents(msgs)
			Expect(got).To(Equal([]string{"partial"}))
			Expect(strings.Join(got, "")).NotTo(ContainSubstring(chat.FailureMessage))
			Expect(session.State()).To(Equal(stream.StateFailed))
		})
	})

	Context("when the caller cancels", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				writeEvents(w, "event: chunk\ndata: {\"content\":\"x\"}\n\n")
				<-r.Context().Done()
			}
		})

		It("closes the channel without a failure message", func() {
			msgs, session := svc.Send(ctx, "hi", "t1")

			Eventually(msgs).Should(Receive())
			session.Cancel()

			Expect(contents(msgs)).To(BeEmpty())
			Expect(session.Wait()).To(MatchError(stream.ErrCancelled))
		})
	})
})

var _ = Describe("NewThreadID", func() {
	It("returns unique prefixed ids", func() {
		a, b := chat.NewThreadID(), chat.NewThreadID()
		Expect(a).To(HavePrefix("chat-"))
		Expect(a).NotTo(Equal(b))
	})
})
