// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package install is the package installation pipeline.
//
// [Pipeline.Begin] resolves an install target against the registry and
// claims the package's slot in the package registry (absent becomes
// installing, installed becomes updating) in one immediate
// transaction, then hands the rest of the install to a background
// goroutine and returns a [Job]. The background work:
//
//  1. reuses a cached archive whose content hash matches the one the
//     registry advertises, or streams the download into the cache
//  2. opens and validates the archive
//  3. unpacks the license, instructions and icon into the public
//     directory and streams the image payload into the container
//     engine
//  4. installs volumes and interfaces, registers the process manager
//     and commits the secret store, then the package registry
//  5. for an update, runs migrations and reconfigures the package
//
// Progress is observed on every byte and persisted into the transient
// slot at the end of each phase (and periodically while downloading).
// Any failure after the slot transition records the package in the
// broken packages set and leaves the transient slot for [Pipeline.Cleanup].
//
// The secret store commits before the package registry. When the
// registry commit then fails, a reconciliation marker is written to
// the secret store and the install fails with a *StoreCommitError;
// [Pipeline.Reconcile] later drops or repairs the orphaned keys.
package install
