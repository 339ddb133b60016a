// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS package_data (
	id       TEXT PRIMARY KEY,
	state    TEXT NOT NULL,
	document BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS broken_packages (
	id          TEXT PRIMARY KEY,
	error       TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
) WITHOUT ROWID;
`

// Config configures Open.
type Config struct {
	// Path is the database file.
	Path string

	// PoolSize is passed to sqlitepool. Zero uses its default.
	PoolSize int

	// Clock timestamps broken-package records. Nil means the real
	// clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is the package registry.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (creating if needed) the registry database. The schema,
// including the broken packages table, is created with the database.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Durable:  true,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening package registry: %w", err)
	}
	return &Store{pool: pool, clock: clk, logger: logger}, nil
}

// Close closes the database. Open transactions must be finished first.
func (s *Store) Close() error { return s.pool.Close() }

// Begin starts a write transaction. The caller must Commit or Rollback;
// deferring Rollback is safe after Commit.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	inner, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("package registry: %w", err)
	}
	return &Tx{inner: inner}, nil
}

// Update runs fn in a transaction, committing if fn returns nil and
// rolling back otherwise.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Get reads one slot outside any write transaction. It returns nil
// when the slot is absent.
func (s *Store) Get(ctx context.Context, id pkgid.PackageID) (Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("package registry: %w", err)
	}
	defer s.pool.Put(conn)
	return getEntry(conn, id)
}

// Keys lists package ids in order. Transient (installing, updating)
// slots are included only when includeTransient is set.
func (s *Store) Keys(ctx context.Context, includeTransient bool) ([]pkgid.PackageID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("package registry: %w", err)
	}
	defer s.pool.Put(conn)
	return listKeys(conn, includeTransient)
}

// All returns every slot.
func (s *Store) All(ctx context.Context) (map[pkgid.PackageID]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("package registry: %w", err)
	}
	defer s.pool.Put(conn)

	entries := make(map[pkgid.PackageID]Entry)
	err = sqlitex.Execute(conn, "SELECT id, state, document FROM package_data ORDER BY id", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id := pkgid.PackageID(stmt.ColumnText(0))
			entry, err := decodeEntry(State(stmt.ColumnText(1)), columnBytes(stmt, 2))
			if err != nil {
				return fmt.Errorf("slot %s: %w", id, err)
			}
			entries[id] = entry
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("package registry: listing slots: %w", err)
	}
	return entries, nil
}

// PutProgress stores a progress snapshot into a transient slot. It
// implements progress.Persister. A slot that is no longer transient
// (the install settled or was cleaned up) is left alone.
func (s *Store) PutProgress(ctx context.Context, id pkgid.PackageID, snapshot progress.Snapshot) error {
	return s.Update(ctx, func(tx *Tx) error {
		entry, err := tx.Get(id)
		if err != nil {
			return err
		}
		switch typed := entry.(type) {
		case *Installing:
			typed.Progress = snapshot
		case *Updating:
			typed.Progress = snapshot
		case *Installed, nil:
			return nil
		}
		return tx.Put(id, entry)
	})
}

// BrokenPackage is one entry of the broken packages set.
type BrokenPackage struct {
	ID         pkgid.PackageID `json:"id"`
	Error      string          `json:"error"`
	RecordedAt time.Time       `json:"recorded-at"`
}

// RecordBroken adds id to the broken packages set in its own
// transaction, replacing any earlier record for the same id.
func (s *Store) RecordBroken(ctx context.Context, id pkgid.PackageID, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	err := s.Update(ctx, func(tx *Tx) error {
		conn, err := tx.inner.Conn()
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`INSERT INTO broken_packages (id, error, recorded_at) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET error = excluded.error, recorded_at = excluded.recorded_at`,
			&sqlitex.ExecOptions{Args: []any{string(id), message, s.clock.Now().UnixNano()}})
	})
	if err != nil {
		return fmt.Errorf("package registry: recording %s as broken: %w", id, err)
	}
	s.logger.Warn("package recorded as broken", "package", id, "error", message)
	return nil
}

// BrokenPackages lists the broken packages set in id order.
func (s *Store) BrokenPackages(ctx context.Context) ([]BrokenPackage, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("package registry: %w", err)
	}
	defer s.pool.Put(conn)

	var broken []BrokenPackage
	err = sqlitex.Execute(conn, "SELECT id, error, recorded_at FROM broken_packages ORDER BY id", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			broken = append(broken, BrokenPackage{
				ID:         pkgid.PackageID(stmt.ColumnText(0)),
				Error:      stmt.ColumnText(1),
				RecordedAt: time.Unix(0, stmt.ColumnInt64(2)).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("package registry: listing broken packages: %w", err)
	}
	return broken, nil
}

// ClearBroken removes id from the broken packages set. Clearing an id
// that is not broken is not an error.
func (s *Store) ClearBroken(ctx context.Context, id pkgid.PackageID) error {
	return s.Update(ctx, func(tx *Tx) error {
		conn, err := tx.inner.Conn()
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn, "DELETE FROM broken_packages WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{string(id)}})
	})
}

// ConflictError reports an attempt to start an install on a package
// that already has one in flight.
type ConflictError struct {
	ID    pkgid.PackageID
	State State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("package %s is already %s", e.ID, e.State)
}

// IsConflict reports whether err is (or wraps) a *ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
