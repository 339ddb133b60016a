// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secretstore is the second durable store of an install: a
// SQLite database, separate from the package registry, that holds the
// private keys of package network interfaces and the reconciliation
// markers written when the two stores fall out of step.
//
// Keys are sealed with age (see lib/sealed) to the host identity
// before they reach disk and are handed back in protected memory
// (lib/secret). The store never holds the host's private key beyond
// borrowing it to decrypt.
//
// An install writes keys inside a [Tx] and commits it before the
// registry. If the registry commit then fails, the install records a
// [Marker] naming the package; the install pipeline's reconcile pass
// later deletes the keys if the package never made it into the
// registry.
package secretstore
