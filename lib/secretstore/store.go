// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secretstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/sealed"
	"github.com/bureau-foundation/appmgr/lib/secret"
	"github.com/bureau-foundation/appmgr/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS tor_keys (
	package_id   TEXT NOT NULL,
	interface_id TEXT NOT NULL,
	sealed       TEXT NOT NULL,
	PRIMARY KEY (package_id, interface_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS reconcile_markers (
	id         TEXT PRIMARY KEY,
	package_id TEXT NOT NULL,
	version    TEXT NOT NULL,
	reason     TEXT NOT NULL,
	created_at INTEGER NOT NULL
) WITHOUT ROWID;
`

// Config configures Open.
type Config struct {
	Path string

	// Identity seals and unseals stored keys. It is borrowed: the
	// caller keeps it open for the store's lifetime and closes it
	// afterwards.
	Identity *sealed.Keypair

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is the secret store.
type Store struct {
	pool     *sqlitepool.Pool
	identity *sealed.Keypair
	clock    clock.Clock
	logger   *slog.Logger
}

// Open opens (creating if needed) the secret store database.
func Open(cfg Config) (*Store, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("secret store: Identity is required")
	}
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
		PoolSize: 2,
		Durable:  true,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening secret store: %w", err)
	}
	return &Store{pool: pool, identity: cfg.Identity, clock: clk, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.pool.Close() }

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	inner, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret store: %w", err)
	}
	return &Tx{store: s, inner: inner}, nil
}

// DeletePackageKeys removes every key of id in its own transaction and
// returns how many were removed.
func (s *Store) DeletePackageKeys(ctx context.Context, id pkgid.PackageID) (int, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	removed, err := tx.DeletePackage(id)
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// Marker records that the secret store committed for an install whose
// registry commit failed.
type Marker struct {
	ID        string          `json:"id"`
	Package   pkgid.PackageID `json:"package"`
	Version   pkgid.Version   `json:"version"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created-at"`
}

// AddMarker stores a new marker with a fresh id and returns it.
func (s *Store) AddMarker(ctx context.Context, id pkgid.PackageID, version pkgid.Version, reason string) (Marker, error) {
	marker := Marker{
		ID:        uuid.NewString(),
		Package:   id,
		Version:   version,
		Reason:    reason,
		CreatedAt: s.clock.Now().UTC(),
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Marker{}, fmt.Errorf("secret store: %w", err)
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(conn,
		"INSERT INTO reconcile_markers (id, package_id, version, reason, created_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{
			marker.ID, string(id), version.String(), reason, marker.CreatedAt.UnixNano(),
		}})
	if err != nil {
		return Marker{}, fmt.Errorf("secret store: adding marker for %s: %w", id, err)
	}
	s.logger.Warn("reconciliation marker recorded",
		"marker", marker.ID,
		"package", id,
		"version", version,
		"reason", reason,
	)
	return marker, nil
}

// Markers lists markers oldest first.
func (s *Store) Markers(ctx context.Context) ([]Marker, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret store: %w", err)
	}
	defer s.pool.Put(conn)

	var markers []Marker
	err = sqlitex.Execute(conn,
		"SELECT id, package_id, version, reason, created_at FROM reconcile_markers ORDER BY created_at, id",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				version, err := pkgid.ParseVersion(stmt.ColumnText(2))
				if err != nil {
					return fmt.Errorf("marker %s: %w", stmt.ColumnText(0), err)
				}
				markers = append(markers, Marker{
					ID:        stmt.ColumnText(0),
					Package:   pkgid.PackageID(stmt.ColumnText(1)),
					Version:   version,
					Reason:    stmt.ColumnText(3),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("secret store: listing markers: %w", err)
	}
	return markers, nil
}

// DeleteMarker removes a marker.
func (s *Store) DeleteMarker(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("secret store: %w", err)
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(conn, "DELETE FROM reconcile_markers WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("secret store: deleting marker %s: %w", id, err)
	}
	return nil
}

// Tx is an open secret store transaction.
type Tx struct {
	store *Store
	inner *sqlitepool.Tx
}

// TorKey returns the unsealed key of one interface, or nil if none is
// stored. The caller must Close the buffer.
func (tx *Tx) TorKey(id pkgid.PackageID, iface pkgid.InterfaceID) (*secret.Buffer, error) {
	conn, err := tx.inner.Conn()
	if err != nil {
		return nil, err
	}
	var (
		ciphertext string
		found      bool
	)
	err = sqlitex.Execute(conn, "SELECT sealed FROM tor_keys WHERE package_id = ? AND interface_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(id), string(iface)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ciphertext = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("secret store: reading key %s/%s: %w", id, iface, err)
	}
	if !found {
		return nil, nil
	}
	key, err := sealed.Decrypt(ciphertext, tx.store.identity.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("secret store: unsealing key %s/%s: %w", id, iface, err)
	}
	return key, nil
}

// TorKeys returns every stored key of a package. The caller must Close
// each buffer.
func (tx *Tx) TorKeys(id pkgid.PackageID) (map[pkgid.InterfaceID]*secret.Buffer, error) {
	conn, err := tx.inner.Conn()
	if err != nil {
		return nil, err
	}
	var interfaces []pkgid.InterfaceID
	err = sqlitex.Execute(conn, "SELECT interface_id FROM tor_keys WHERE package_id = ? ORDER BY interface_id",
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				interfaces = append(interfaces, pkgid.InterfaceID(stmt.ColumnText(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("secret store: listing keys of %s: %w", id, err)
	}

	keys := make(map[pkgid.InterfaceID]*secret.Buffer, len(interfaces))
	for _, iface := range interfaces {
		key, err := tx.TorKey(id, iface)
		if err != nil {
			closeAll(keys)
			return nil, err
		}
		keys[iface] = key
	}
	return keys, nil
}

// PutTorKey seals key to the host identity and stores it, replacing any
// earlier key for the interface.
func (tx *Tx) PutTorKey(id pkgid.PackageID, iface pkgid.InterfaceID, key []byte) error {
	conn, err := tx.inner.Conn()
	if err != nil {
		return err
	}
	ciphertext, err := sealed.Encrypt(key, tx.store.identity.PublicKey)
	if err != nil {
		return fmt.Errorf("secret store: sealing key %s/%s: %w", id, iface, err)
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO tor_keys (package_id, interface_id, sealed) VALUES (?, ?, ?)
		 ON CONFLICT(package_id, interface_id) DO UPDATE SET sealed = excluded.sealed`,
		&sqlitex.ExecOptions{Args: []any{string(id), string(iface), ciphertext}})
	if err != nil {
		return fmt.Errorf("secret store: writing key %s/%s: %w", id, iface, err)
	}
	return nil
}

// DeletePackage removes every key of a package and returns how many
// were removed.
func (tx *Tx) DeletePackage(id pkgid.PackageID) (int, error) {
	conn, err := tx.inner.Conn()
	if err != nil {
		return 0, err
	}
	err = sqlitex.Execute(conn, "DELETE FROM tor_keys WHERE package_id = ?",
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return 0, fmt.Errorf("secret store: deleting keys of %s: %w", id, err)
	}
	return conn.Changes(), nil
}

// Commit makes the transaction's writes durable.
func (tx *Tx) Commit() error {
	if err := tx.inner.Commit(); err != nil {
		return fmt.Errorf("secret store: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op once finished.
func (tx *Tx) Rollback() error { return tx.inner.Rollback() }

func closeAll(keys map[pkgid.InterfaceID]*secret.Buffer) {
	for _, key := range keys {
		key.Close()
	}
}
