// Package worker provides an asynchronous worker pool that records completed
// chat turns in a transcript.Store and announces them on an event stream.
//
// The pool keeps persistence off the stream read loop so that a slow database
// or broker never delays event delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/eventstream"
	"github.com/papercomputeco/trickle/pkg/logger"
	"github.com/papercomputeco/trickle/pkg/transcript"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one completed chat turn.
type Job struct {
	ThreadID string
	Input    string
	Output   string

	// Backend and Path identify the stream the output came from.
	Backend string
	Path    string

	StartedAt   time.Time
	CompletedAt time.Time
	Events      int64

	// Outcome is the final session state.
	Outcome string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Store persists the turn entries.
	Store transcript.Store

	// Publisher is the optional event stream publisher.
	// If nil, no events are published.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes turn jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Store == nil {
		return nil, errors.New("transcript store is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", zap.String("thread_id", job.ThreadID))
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", zap.String("thread_id", job.ThreadID))
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Enqueue must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the turn and then publishes it. A failed append skips
// publishing.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if err := p.storeTurn(ctx, job); err != nil {
		p.logger.Error("turn storage failed",
			zap.String("thread_id", job.ThreadID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("turn stored", zap.String("thread_id", job.ThreadID))

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnRecordedEvent(
		eventstream.EventSource{Backend: job.Backend, Path: job.Path},
		eventstream.StreamMeta{
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
			DurationMs:  job.CompletedAt.Sub(job.StartedAt).Milliseconds(),
			Events:      job.Events,
			Outcome:     job.Outcome,
		},
		eventstream.Turn{ThreadID: job.ThreadID, Input: job.Input, Output: job.Output},
	)

	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("turn event publish failed",
			zap.String("thread_id", job.ThreadID),
			zap.Error(err),
		)
	}
}

// storeTurn appends the user input and, when present, the assistant output.
func (p *Pool) storeTurn(ctx context.Context, job Job) error {
	entries := []transcript.Entry{{
		ThreadID:  job.ThreadID,
		Role:      transcript.RoleUser,
		Content:   job.Input,
		CreatedAt: job.StartedAt,
	}}
	if job.Output != "" {
		entries = append(entries, transcript.Entry{
			ThreadID:  job.ThreadID,
			Role:      transcript.RoleAssistant,
			Content:   job.Output,
			CreatedAt: job.CompletedAt,
		})
	}

	for _, e := range entries {
		if err := p.config.Store.Append(ctx, e); err != nil {
			return fmt.Errorf("appending %s entry: %w", e.Role, err)
		}
	}

	return nil
}
