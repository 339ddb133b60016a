// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrTxDone is returned by Tx methods after Commit or Rollback.
var ErrTxDone = errors.New("sqlitepool: transaction already finished")

// Tx is a write transaction that outlives a single function call. It
// holds one connection and the database write lock from Begin until
// Commit or Rollback. Use sqlitex.ImmediateTransaction instead when the
// transaction fits in one function.
type Tx struct {
	pool *Pool
	conn *sqlite.Conn
	done bool
}

// Begin takes a connection and starts a BEGIN IMMEDIATE transaction.
// ctx bounds the wait for a connection and for nothing else: statements
// inside the transaction are never interrupted, so a cancelled caller
// cannot leave a half-open transaction on a pooled connection.
func (p *Pool) Begin(ctx context.Context) (*Tx, error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return nil, err
	}
	conn.SetInterrupt(nil)
	if err := sqlitex.ExecuteTransient(conn, "BEGIN IMMEDIATE", nil); err != nil {
		p.Put(conn)
		return nil, fmt.Errorf("sqlitepool: begin: %w", err)
	}
	return &Tx{pool: p, conn: conn}, nil
}

// Conn returns the transaction's connection, or ErrTxDone.
func (tx *Tx) Conn() (*sqlite.Conn, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.conn, nil
}

// Commit commits and returns the connection to the pool. If COMMIT
// fails the transaction is rolled back.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer tx.pool.Put(tx.conn)
	if err := sqlitex.ExecuteTransient(tx.conn, "COMMIT", nil); err != nil {
		if !tx.conn.AutocommitEnabled() {
			_ = sqlitex.ExecuteTransient(tx.conn, "ROLLBACK", nil)
		}
		return fmt.Errorf("sqlitepool: commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction and returns the connection to the
// pool. It is a no-op once the transaction is finished, so it can be
// deferred right after Begin.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.pool.Put(tx.conn)
	if err := sqlitex.ExecuteTransient(tx.conn, "ROLLBACK", nil); err != nil {
		return fmt.Errorf("sqlitepool: rollback: %w", err)
	}
	return nil
}
