package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/genericchat/backend/internal/domain"
)

// timeLayout is the fixed-width RFC 3339 form used for all persisted
// timestamps. Fixed millisecond precision keeps lexical and chronological
// order identical, so the column can be sorted directly.
const timeLayout = "2006-01-02T15:04:05.000Z"

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, domain.ErrParse)
	}
	return t, nil
}

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the conversation-store schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Accounts, keyed by canonical key
		`CREATE TABLE IF NOT EXISTS accounts (
			key             TEXT PRIMARY KEY,
			first_name      TEXT NOT NULL,
			last_name       TEXT NOT NULL,
			hashed_password TEXT NOT NULL,
			avatar_path     TEXT,
			created_at      TEXT NOT NULL
		);`,
		// Denormalized search index; the UNIQUE key makes concurrent
		// registration race-free (no duplicate entries, no lost updates).
		`CREATE TABLE IF NOT EXISTS directory (
			key  TEXT PRIMARY KEY REFERENCES accounts(key),
			name TEXT NOT NULL
		);`,
		// Per-account conversation index. Each conversation has one row per
		// participant; the two rows are asymmetric (each names the other
		// party) and are written in a single transaction.
		`CREATE TABLE IF NOT EXISTS conversation_entries (
			owner_key      TEXT NOT NULL REFERENCES accounts(key),
			conversation_id TEXT NOT NULL,
			other_key      TEXT NOT NULL,
			name           TEXT NOT NULL,
			latest_date    TEXT NOT NULL,
			latest_message TEXT NOT NULL,
			latest_is_read INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (owner_key, conversation_id)
		);`,
		// Append-only message logs. seq is the server-assigned total order
		// observed by every subscriber.
		`CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			id              TEXT NOT NULL,
			type            TEXT NOT NULL,
			content         TEXT NOT NULL,
			date            TEXT NOT NULL,
			sender_key      TEXT NOT NULL,
			sender_name     TEXT NOT NULL,
			is_read         INTEGER NOT NULL DEFAULT 0
		);`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_entries_owner ON conversation_entries(owner_key, latest_date DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_conversation ON conversation_entries(conversation_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_directory_name ON directory(name);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

// storeErr classifies a driver error into the domain taxonomy: deadline
// expiry becomes ErrTimeout, everything else an ErrTransport with the driver
// detail preserved in the message.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %s: %w", op, err, domain.ErrTransport)
	}
}
