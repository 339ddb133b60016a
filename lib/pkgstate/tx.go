// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgstate

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/appmgr/lib/codec"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/sqlitepool"
)

// Tx is an open registry transaction. It holds the database write lock
// until Commit or Rollback and is not safe for concurrent use.
type Tx struct {
	inner *sqlitepool.Tx
}

// Get returns the slot for id, or nil if it is absent.
func (tx *Tx) Get(id pkgid.PackageID) (Entry, error) {
	conn, err := tx.inner.Conn()
	if err != nil {
		return nil, err
	}
	return getEntry(conn, id)
}

// Put writes the slot for id.
func (tx *Tx) Put(id pkgid.PackageID, entry Entry) error {
	conn, err := tx.inner.Conn()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("package registry: nil entry for %s (use Delete)", id)
	}
	document, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("package registry: encoding %s slot: %w", id, err)
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO package_data (id, state, document) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, document = excluded.document`,
		&sqlitex.ExecOptions{Args: []any{string(id), string(entry.State()), document}})
	if err != nil {
		return fmt.Errorf("package registry: writing %s slot: %w", id, err)
	}
	return nil
}

// Delete removes the slot for id. Deleting an absent slot is not an
// error.
func (tx *Tx) Delete(id pkgid.PackageID) error {
	conn, err := tx.inner.Conn()
	if err != nil {
		return err
	}
	err = sqlitex.Execute(conn, "DELETE FROM package_data WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{string(id)}})
	if err != nil {
		return fmt.Errorf("package registry: deleting %s slot: %w", id, err)
	}
	return nil
}

// Keys lists package ids in order, including transient slots only when
// includeTransient is set.
func (tx *Tx) Keys(includeTransient bool) ([]pkgid.PackageID, error) {
	conn, err := tx.inner.Conn()
	if err != nil {
		return nil, err
	}
	return listKeys(conn, includeTransient)
}

// Commit makes the transaction's writes durable.
func (tx *Tx) Commit() error {
	if err := tx.inner.Commit(); err != nil {
		return fmt.Errorf("package registry: %w", err)
	}
	return nil
}

// Rollback discards the transaction's writes. It is a no-op after
// Commit or a previous Rollback.
func (tx *Tx) Rollback() error { return tx.inner.Rollback() }

func getEntry(conn *sqlite.Conn, id pkgid.PackageID) (Entry, error) {
	var (
		entry Entry
		found bool
	)
	err := sqlitex.Execute(conn, "SELECT state, document FROM package_data WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{string(id)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			var err error
			entry, err = decodeEntry(State(stmt.ColumnText(0)), columnBytes(stmt, 1))
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("package registry: reading %s slot: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

func listKeys(conn *sqlite.Conn, includeTransient bool) ([]pkgid.PackageID, error) {
	query := "SELECT id FROM package_data ORDER BY id"
	var args []any
	if !includeTransient {
		query = "SELECT id FROM package_data WHERE state = ? ORDER BY id"
		args = []any{string(StateInstalled)}
	}
	var keys []pkgid.PackageID
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			keys = append(keys, pkgid.PackageID(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("package registry: listing keys: %w", err)
	}
	return keys, nil
}

func decodeEntry(state State, document []byte) (Entry, error) {
	var entry Entry
	switch state {
	case StateInstalling:
		entry = &Installing{}
	case StateUpdating:
		entry = &Updating{}
	case StateInstalled:
		entry = &Installed{}
	default:
		return nil, fmt.Errorf("unknown slot state %q", state)
	}
	if err := codec.Unmarshal(document, entry); err != nil {
		return nil, fmt.Errorf("decoding %s slot: %w", state, err)
	}
	return entry, nil
}

func columnBytes(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}
