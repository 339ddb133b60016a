// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress tracks the byte-level progress of one package
// install.
//
// [InstallProgress] is a set of atomic counters and one-way latches. It
// has exactly one writer (the install goroutine, through [Reader] and
// [Writer] wrappers and explicit latch calls) and any number of
// readers, which take a [Snapshot]. Counters only grow and latches
// never reset, so successive snapshots are monotonic.
//
// [Tracker] binds an InstallProgress to a durable store: During
// persists a snapshot when a phase finishes, and DownloadDuring also
// persists at a fixed interval while the download runs.
package progress
