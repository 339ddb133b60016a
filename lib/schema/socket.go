// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/progress"
)

// PackageRequest is the request of every action that names one
// package.
type PackageRequest struct {
	Package string `json:"package"`
}

// HealthResponse is the response to ActionHealth.
type HealthResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Installing    []pkgid.PackageID `json:"installing"`
}

// InstallResponse describes a started install.
type InstallResponse struct {
	Package pkgid.PackageID `json:"package"`
	Version pkgid.Version   `json:"version"`

	// Attempt is the id the daemon logs the install under.
	Attempt string `json:"attempt"`

	// Updating is true when the install replaces an installed
	// version.
	Updating bool `json:"updating"`
}

// ProgressResponse is the response to ActionProgress.
type ProgressResponse struct {
	Package pkgid.PackageID `json:"package"`

	// Live is true when the counters come from a running install
	// rather than the snapshot last persisted in the registry (an
	// install that died with the previous daemon).
	Live bool `json:"live"`

	// Stage is Snapshot.Stage().
	Stage string `json:"stage"`

	// Percent is Snapshot.Percent(), absent while the archive size is
	// unknown.
	Percent *float64 `json:"percent,omitempty"`

	Snapshot progress.Snapshot `json:"snapshot"`
}

// PackageStatus is one registry slot as the socket API reports it.
type PackageStatus struct {
	Package pkgid.PackageID `json:"package"`
	State   pkgstate.State  `json:"state"`
	Version pkgid.Version   `json:"version"`

	// Incoming is the version an update is installing over Version.
	Incoming *pkgid.Version `json:"incoming,omitempty"`

	Manifest *manifest.Manifest `json:"manifest"`

	// Progress is set for the transient states.
	Progress *progress.Snapshot `json:"progress,omitempty"`

	// Installed and StaticFiles are set when a version is installed
	// (Installed and Updating).
	Installed   *pkgstate.InstalledPackageDataEntry `json:"installed,omitempty"`
	StaticFiles *pkgstate.StaticFiles               `json:"static_files,omitempty"`
}

// PackageSummary is one element of the ActionList response.
type PackageSummary struct {
	Package pkgid.PackageID `json:"package"`
	Title   string          `json:"title"`
	State   pkgstate.State  `json:"state"`
	Version pkgid.Version   `json:"version"`

	// Main is the main container state of an installed package.
	Main *pkgstate.MainStatus `json:"main,omitempty"`

	// Broken is true when the package's last install failed and has
	// not been cleaned up.
	Broken bool `json:"broken"`
}
