// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Socket actions served by appmgrd.
const (
	// ActionHealth reports the daemon version, uptime and the
	// packages being installed. Takes no fields.
	ActionHealth = "health"

	// ActionInstall starts an install of PackageRequest.Package,
	// which may carry a version range ("id@range"). Returns
	// InstallResponse once the package's slot is claimed.
	ActionInstall = "install"

	// ActionProgress returns ProgressResponse for a package with an
	// install in flight.
	ActionProgress = "progress"

	// ActionStatus returns PackageStatus for one registry slot.
	ActionStatus = "status"

	// ActionList returns a []PackageSummary of every slot.
	ActionList = "list"

	// ActionBroken returns the []pkgstate.BrokenPackage records of
	// failed installs.
	ActionBroken = "broken"

	// ActionCleanup recovers the failed install of
	// PackageRequest.Package.
	ActionCleanup = "cleanup"

	// ActionReconcile repairs installs interrupted between the secret
	// store and registry commits. Returns []install.ReconcileOutcome.
	ActionReconcile = "reconcile"
)
