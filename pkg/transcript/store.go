// Package transcript persists the messages of chat threads.
package transcript

import (
	"context"
	"errors"
	"time"
)

// Roles used by chat entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyThreadID is returned when an entry has no thread id.
var ErrEmptyThreadID = errors.New("entry has no thread id")

// Entry is one message of a thread.
type Entry struct {
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate reports whether e can be stored.
func (e Entry) Validate() error {
	if e.ThreadID == "" {
		return ErrEmptyThreadID
	}
	if e.Role == "" {
		return errors.New("entry has no role")
	}
	return nil
}

// Thread summarizes one stored thread.
type Thread struct {
	ID      string `json:"id"`
	Entries int    `json:"entries"`
}

// Store defines the interface for persisting and retrieving chat transcripts.
type Store interface {
	// Append stores an entry at the end of its thread. A zero CreatedAt is
	// set to the current time.
	Append(ctx context.Context, entry Entry) error

	// List returns the entries of a thread in insertion order.
	// It returns a NotFoundError for unknown threads.
	List(ctx context.Context, threadID string) ([]Entry, error)

	// Threads returns every thread, most recently written first.
	Threads(ctx context.Context) ([]Thread, error)

	// Close releases any resources held by the store.
	Close() error
}
