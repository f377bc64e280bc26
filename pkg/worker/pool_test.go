package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/eventstream"
	"github.com/papercomputeco/trickle/pkg/transcript"
	"github.com/papercomputeco/trickle/pkg/transcript/inmemory"
)

// recordingPublisher remembers published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnRecordedEvent
	err    error
}

func (p *recordingPublisher) PublishTurn(_ context.Context, ev *eventstream.TurnRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.TurnRecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnRecordedEvent(nil), p.events...)
}

// failingStore rejects every append.
type failingStore struct {
	transcript.Store
}

func (failingStore) Append(context.Context, transcript.Entry) error {
	return errors.New("disk full")
}

// newTestPool creates a worker pool backed by an in-memory store.
// Callers should "wp.Close()" to drain enqueued jobs before asserting store state.
func newTestPool(pub eventstream.Publisher) (*Pool, *inmemory.Store) {
	logger, _ := zap.NewDevelopment()
	store := inmemory.NewStore()

	wp, err := NewPool(&Config{
		Store:     store,
		Publisher: pub,
		Logger:    logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, store
}

func testJob(threadID, output string) Job {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Job{
		ThreadID:    threadID,
		Input:       "What is 2+2?",
		Output:      output,
		Backend:     "http://localhost:8080",
		Path:        "/api/chat/query",
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
		Events:      4,
		Outcome:     "completed",
	}
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewPool", func() {
		It("requires a store", func() {
			_, err := NewPool(&Config{})
			Expect(err).To(MatchError(ContainSubstring("store is required")))
		})

		It("applies defaults", func() {
			cfg := &Config{Store: inmemory.NewStore()}
			wp, err := NewPool(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer wp.Close()

			Expect(cfg.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(cfg.QueueSize).To(Equal(defaultJobQueueSize))
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _ := newTestPool(nil)
			Expect(wp.Enqueue(testJob("t1", "4"))).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			release := make(chan struct{})
			blocking := &blockingStore{Store: inmemory.NewStore(), release: release}
			wp, err := NewPool(&Config{Store: blocking, NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(testJob("a", ""))).To(BeTrue())
			Eventually(blocking.started).Should(BeClosed())
			Expect(wp.Enqueue(testJob("b", ""))).To(BeTrue())
			Expect(wp.Enqueue(testJob("c", ""))).To(BeFalse())

			close(release)
			wp.Close()
		})
	})

	Describe("turn storage", func() {
		It("stores the user input and assistant output", func() {
			wp, store := newTestPool(nil)
			wp.Enqueue(testJob("t1", "4"))
			wp.Close()

			entries, err := store.List(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Role).To(Equal(transcript.RoleUser))
			Expect(entries[0].Content).To(Equal("What is 2+2?"))
			Expect(entries[1].Role).To(Equal(transcript.RoleAssistant))
			Expect(entries[1].Content).To(Equal("4"))
			Expect(entries[1].CreatedAt).To(Equal(entries[0].CreatedAt.Add(1500 * time.Millisecond)))
		})

		It("stores only the input when no output arrived", func() {
			wp, store := newTestPool(nil)
			wp.Enqueue(testJob("t2", ""))
			wp.Close()

			entries, err := store.List(ctx, "t2")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("keeps turns of one thread together", func() {
			wp, store := newTestPool(nil)
			wp.Enqueue(testJob("t3", "first"))
			wp.Close()

			wp2, err := NewPool(&Config{Store: store})
			Expect(err).NotTo(HaveOccurred())
			wp2.Enqueue(testJob("t3", "second"))
			wp2.Close()

			entries, err := store.List(ctx, "t3")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(4))
		})
	})

	Describe("publishing", func() {
		It("publishes a turn event after storing", func() {
			pub := &recordingPublisher{}
			wp, _ := newTestPool(pub)
			wp.Enqueue(testJob("t1", "4"))
			wp.Close()

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Turn).To(Equal(eventstream.Turn{ThreadID: "t1", Input: "What is 2+2?", Output: "4"}))
			Expect(events[0].StreamMeta.DurationMs).To(Equal(int64(1500)))
			Expect(events[0].StreamMeta.Events).To(Equal(int64(4)))
			Expect(events[0].Source.Path).To(Equal("/api/chat/query"))
		})

		It("does not publish when storage fails", func() {
			pub := &recordingPublisher{}
			wp, err := NewPool(&Config{Store: failingStore{}, Publisher: pub})
			Expect(err).NotTo(HaveOccurred())

			wp.Enqueue(testJob("t1", "4"))
			wp.Close()

			Expect(pub.Events()).To(BeEmpty())
		})

		It("keeps storing when publishing fails", func() {
			pub := &recordingPublisher{err: errors.New("broker down")}
			wp, store := newTestPool(pub)
			wp.Enqueue(testJob("t1", "4"))
			wp.Close()

			_, err := store.List(ctx, "t1")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("tolerates repeated Close", func() {
		wp, _ := newTestPool(nil)
		wp.Close()
		wp.Close()
	})
})

// blockingStore holds the first append until release is closed.
type blockingStore struct {
	transcript.Store
	release chan struct{}

	once    sync.Once
	startCh chan struct{}
	mu      sync.Mutex
}

func (s *blockingStore) started() <-chan struct{} {
	return s.startChan()
}

func (s *blockingStore) startChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startCh == nil {
		s.startCh = make(chan struct{})
	}
	return s.startCh
}

func (s *blockingStore) Append(ctx context.Context, e transcript.Entry) error {
	start := s.startChan()
	s.once.Do(func() { close(start) })
	<-s.release
	return s.Store.Append(ctx, e)
}
