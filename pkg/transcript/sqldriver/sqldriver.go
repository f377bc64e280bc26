// Package sqldriver implements transcript.Store over database/sql. The sqlite
// and postgres packages configure it with their dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/papercomputeco/trickle/pkg/transcript"
)

// Dialect holds the statements that differ between databases.
type Dialect struct {
	// Schema is executed in order when the driver opens.
	Schema []string

	// Placeholder returns the bind parameter for the n-th argument (1-based).
	Placeholder func(n int) string
}

// Driver implements transcript.Store on a *sql.DB.
type Driver struct {
	DB *sql.DB

	insertQuery  string
	listQuery    string
	threadsQuery string
}

// New applies the dialect schema to db and returns a Driver that owns it.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Driver, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	p := d.Placeholder
	return &Driver{
		DB: db,
		insertQuery: fmt.Sprintf(
			"INSERT INTO transcript_entries (thread_id, role, content, created_at) VALUES (%s, %s, %s, %s)",
			p(1), p(2), p(3), p(4),
		),
		listQuery: fmt.Sprintf(
			"SELECT thread_id, role, content, created_at FROM transcript_entries WHERE thread_id = %s ORDER BY id",
			p(1),
		),
		threadsQuery: "SELECT thread_id, COUNT(*) FROM transcript_entries GROUP BY thread_id ORDER BY MAX(id) DESC",
	}, nil
}

// Append stores an entry at the end of its thread.
func (d *Driver) Append(ctx context.Context, entry transcript.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := d.DB.ExecContext(ctx, d.insertQuery,
		entry.ThreadID, entry.Role, entry.Content, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	return nil
}

// List returns the entries of a thread in insertion order.
func (d *Driver) List(ctx context.Context, threadID string) ([]transcript.Entry, error) {
	rows, err := d.DB.QueryContext(ctx, d.listQuery, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []transcript.Entry
	for rows.Next() {
		var e transcript.Entry
		if err := rows.Scan(&e.ThreadID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	if len(entries) == 0 {
		return nil, transcript.NotFoundError{ThreadID: threadID}
	}

	return entries, nil
}

// Threads returns every thread, most recently written first.
func (d *Driver) Threads(ctx context.Context) ([]transcript.Thread, error) {
	rows, err := d.DB.QueryContext(ctx, d.threadsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []transcript.Thread{}
	for rows.Next() {
		var t transcript.Thread
		if err := rows.Scan(&t.ID, &t.Entries); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}

	return threads, rows.Err()
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}
