// Package store provides SQLite persistence for games, agents and match
// results.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrInUse is returned when deleting a row other rows still reference.
	ErrInUse = errors.New("store: in use")
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store provides SQLite persistence for the arena.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath. Foreign keys, WAL and a busy
// timeout are enabled on every pooled connection.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, multierr.Append(fmt.Errorf("store: ping db: %w", err), db.Close())
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing sql.DB.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("store: migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close checkpoints the write-ahead log and closes the database.
func (s *Store) Close() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		err = fmt.Errorf("store: checkpoint: %w", err)
	}
	return multierr.Append(err, s.db.Close())
}

// withRetry runs fn again while SQLite reports the database as busy or locked.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewExponential(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, ignoreDone(tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

// page clamps a limit/offset pair.
func page(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
