// Package sqlite provides a SQLite-backed transcript store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/trickle/pkg/transcript/sqldriver"
)

var dialect = sqldriver.Dialect{
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS transcript_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id  TEXT      NOT NULL,
			role       TEXT      NOT NULL,
			content    TEXT      NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transcript_entries_thread_id ON transcript_entries (thread_id)`,
	},
	Placeholder: func(int) string { return "?" },
}

// Store implements transcript.Store using SQLite.
type Store struct {
	*sqldriver.Driver
}

// NewStore creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	drv, err := sqldriver.New(context.Background(), db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{Driver: drv}, nil
}
