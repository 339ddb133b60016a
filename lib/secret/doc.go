// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for key material: the
// host's age identity and the ed25519 seeds behind package onion
// addresses.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock, and excludes it from core dumps
// via madvise(MADV_DONTDUMP). Close zeroes, unlocks and unmaps the
// region. The garbage collector never sees the memory, so it cannot
// leave copies behind.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeroes the source
//   - [ReadFile] loads a whitespace-trimmed secret from disk
//
// After Close, any access panics. Close is idempotent.
package secret
