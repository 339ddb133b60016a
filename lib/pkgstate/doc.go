// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgstate is the durable package registry: one slot per
// package id holding an [Entry], plus the set of packages whose last
// install failed ([BrokenPackage]).
//
// The registry is a SQLite database (see lib/sqlitepool). Entries are
// stored as CBOR documents next to a state column, so listing keys by
// state never decodes a document. Every mutation runs inside a [Tx],
// which holds a write lock (BEGIN IMMEDIATE) from Begin to Commit or
// Rollback. Read-modify-write sequences on a slot are therefore
// serialized across goroutines and processes.
//
// Entry is a closed union of *Installing, *Updating and *Installed. An
// absent key means the package is not installed. Code that switches on
// an Entry handles all three cases and the nil (absent) case.
package pkgstate
