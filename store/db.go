// Package store is the embedded persistent store: a single-file SQLite
// database (pure-Go driver, WAL mode) holding fills, markets, account
// summaries, redemptions, and the opportunistic backfill queue (spec
// §4.1). All reads and writes go through this package; no other
// package opens the database file directly.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Store wraps the database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates the database file (and parent directory) if needed and
// establishes a WAL-mode connection. It does not run migrations; call
// Migrate explicitly.
func Open(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		path = absPath
	}

	connStr := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// WAL mode lets readers proceed while a writer holds the database;
	// busy_timeout above serializes the rare writer/writer collision
	// instead of raising SQLITE_BUSY, so the pool doesn't need pinning
	// to one connection.
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Migrate brings the database up to the latest schema version,
// applying only the migrations newer than what's recorded in
// schema_version. Safe to call on every startup: every migration is
// individually idempotent and the version check skips ones already
// applied, so adding columns to an existing table never touches (or
// loses) the data already there.
func (s *Store) Migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			applied_at  TEXT NOT NULL DEFAULT (datetime('now')),
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	return s.withTx(context.Background(), func(tx *sql.Tx) error {
		current, err := currentSchemaVersion(tx)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if err := m.up(tx); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
			if _, err := tx.Exec(`INSERT INTO schema_version (version, description) VALUES (?, ?)`, m.version, m.description); err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}

// Stats is a row-count snapshot of every table, used by the CLI's `db
// status` subcommand.
type Stats struct {
	Fills          int64
	Markets        int64
	Accounts       int64
	Redemptions    int64
	BackfillQueued int64
}

// Stats counts rows in every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	rows := []struct {
		table string
		dst   *int64
	}{
		{"fills", &st.Fills},
		{"markets", &st.Markets},
		{"accounts", &st.Accounts},
		{"redemptions", &st.Redemptions},
		{"backfill_queue", &st.BackfillQueued},
	}
	for _, r := range rows {
		if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table).Scan(r.dst); err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", r.table, err)
		}
	}
	return st, nil
}
