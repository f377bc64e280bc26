// Package inmemory provides an in-memory transcript store.
package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/trickle/pkg/transcript"
)

// Store implements transcript.Store in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]transcript.Entry

	// order holds thread ids, least recently written first.
	order []string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		threads: make(map[string][]transcript.Entry),
	}
}

// Append stores an entry at the end of its thread.
func (s *Store) Append(_ context.Context, entry transcript.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[entry.ThreadID] = append(s.threads[entry.ThreadID], entry)
	if i := slices.Index(s.order, entry.ThreadID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.order = append(s.order, entry.ThreadID)

	return nil
}

// List returns the entries of a thread in insertion order.
func (s *Store) List(_ context.Context, threadID string) ([]transcript.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.threads[threadID]
	if !ok {
		return nil, transcript.NotFoundError{ThreadID: threadID}
	}

	return slices.Clone(entries), nil
}

// Threads returns every thread, most recently written first.
func (s *Store) Threads(_ context.Context) ([]transcript.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]transcript.Thread, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		threads = append(threads, transcript.Thread{ID: id, Entries: len(s.threads[id])})
	}

	return threads, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
