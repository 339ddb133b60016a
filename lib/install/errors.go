// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// ErrClosed is returned by Begin after Close.
var ErrClosed = errors.New("install pipeline is closed")

// ErrNotInFlight is returned by Progress for a package with no install
// in flight.
var ErrNotInFlight = errors.New("no install in flight")

// StoreCommitError reports that the secret store committed but the
// package registry did not. Marker names the reconciliation marker
// left in the secret store, or is empty if writing it also failed.
type StoreCommitError struct {
	Store   string
	Package pkgid.PackageID
	Version pkgid.Version
	Marker  string
	Err     error
}

func (e *StoreCommitError) Error() string {
	if e.Marker == "" {
		return fmt.Sprintf("committing %s@%s to the %s: %v (no reconciliation marker recorded)", e.Package, e.Version, e.Store, e.Err)
	}
	return fmt.Sprintf("committing %s@%s to the %s: %v (reconciliation marker %s)", e.Package, e.Version, e.Store, e.Err, e.Marker)
}

func (e *StoreCommitError) Unwrap() error { return e.Err }

// IsStoreCommit reports whether err is (or wraps) a *StoreCommitError.
func IsStoreCommit(err error) bool {
	var target *StoreCommitError
	return errors.As(err, &target)
}
