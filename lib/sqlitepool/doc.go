// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides appmgr's standard SQLite connection pool.
//
// Both of appmgr's durable stores (the package registry and the secret
// store) are SQLite databases opened through this package. It wraps
// zombiezen.com/go/sqlite with a fixed set of pragmas and an optional
// schema script that runs on every new connection.
//
// Callers [Pool.Take] a connection, do their work, and [Pool.Put] it
// back. Connections are not safe for concurrent use: a goroutine holds
// its connection for the duration of its work, including across a
// multi-statement transaction.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL when Config.Durable is set, NORMAL otherwise.
//     The package registry and secret store are the source of truth for
//     what is installed, so they run durable; NORMAL survives process
//     crashes but not power loss.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of returning SQLITE_BUSY.
//   - foreign_keys=OFF: stores manage their own referential integrity.
//   - cache_size=-8192 and temp_store=MEMORY.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:    filepath.Join(stateDir, "registry.db"),
//	    Durable: true,
//	    Schema:  schema,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// The package exposes the zombiezen types directly. Stores write SQL,
// use sqlitex.Execute for cached statements, and scope short
// transactions with sqlitex.ImmediateTransaction. A transaction that
// spans several calls (an install holds one open across its commit
// steps) uses [Pool.Begin] and [Tx].
package sqlitepool
