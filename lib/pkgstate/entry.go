// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgstate

import (
	"fmt"

	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/progress"
)

// State is the discriminator stored next to each slot document.
type State string

const (
	StateInstalling State = "installing"
	StateUpdating   State = "updating"
	StateInstalled  State = "installed"
)

// Transient reports whether the state belongs to an in-flight install.
func (s State) Transient() bool {
	return s == StateInstalling || s == StateUpdating
}

// Entry is the value of a registry slot: *Installing, *Updating or
// *Installed.
type Entry interface {
	State() State

	// CurrentManifest is the manifest a reader should show for the
	// slot: the new manifest while installing, the running one
	// otherwise.
	CurrentManifest() *manifest.Manifest

	entry()
}

// Installing is a fresh install in flight.
type Installing struct {
	Progress progress.Snapshot  `json:"install-progress"`
	Manifest *manifest.Manifest `json:"manifest"`
}

// Updating is an upgrade in flight. The previous version keeps running
// and all of its data is kept so the slot can be restored.
type Updating struct {
	Progress    progress.Snapshot         `json:"install-progress"`
	Manifest    *manifest.Manifest        `json:"manifest"`
	Installed   InstalledPackageDataEntry `json:"installed"`
	StaticFiles StaticFiles               `json:"static-files"`

	// Incoming is the manifest of the version being installed.
	Incoming *manifest.Manifest `json:"incoming"`
}

// Installed is a settled, installed package.
type Installed struct {
	Installed   InstalledPackageDataEntry `json:"installed"`
	Manifest    *manifest.Manifest        `json:"manifest"`
	StaticFiles StaticFiles               `json:"static-files"`
}

func (*Installing) State() State { return StateInstalling }
func (*Updating) State() State   { return StateUpdating }
func (*Installed) State() State  { return StateInstalled }

func (e *Installing) CurrentManifest() *manifest.Manifest { return e.Manifest }
func (e *Updating) CurrentManifest() *manifest.Manifest   { return e.Manifest }
func (e *Installed) CurrentManifest() *manifest.Manifest  { return e.Manifest }

func (*Installing) entry() {}
func (*Updating) entry()   {}
func (*Installed) entry()  {}

// Progress returns the stored progress snapshot of a transient entry.
func Progress(entry Entry) (progress.Snapshot, bool) {
	switch typed := entry.(type) {
	case *Installing:
		return typed.Progress, true
	case *Updating:
		return typed.Progress, true
	case *Installed, nil:
		return progress.Snapshot{}, false
	default:
		panic(fmt.Sprintf("pkgstate: unknown entry type %T", entry))
	}
}

// StaticFiles are the public URLs of a package's unpacked assets.
type StaticFiles struct {
	License      string `json:"license"`
	Instructions string `json:"instructions"`
	Icon         string `json:"icon"`
}

// NewStaticFiles returns the public URLs for one package version.
func NewStaticFiles(id pkgid.PackageID, version pkgid.Version, iconType string) StaticFiles {
	base := fmt.Sprintf("/public/package-data/%s/%s", id, version)
	return StaticFiles{
		License:      base + "/LICENSE.md",
		Instructions: base + "/INSTRUCTIONS.md",
		Icon:         base + "/icon." + iconType,
	}
}

// InstalledPackageDataEntry is the runtime record of an installed
// package.
type InstalledPackageDataEntry struct {
	Status   Status             `json:"status"`
	Manifest *manifest.Manifest `json:"manifest"`

	// CurrentDependencies holds the package's required dependencies.
	CurrentDependencies map[pkgid.PackageID]CurrentDependencyInfo `json:"current-dependencies"`

	// CurrentDependents holds the installed packages that require this
	// one.
	CurrentDependents map[pkgid.PackageID]CurrentDependencyInfo `json:"current-dependents"`

	InterfaceAddresses map[pkgid.InterfaceID]InterfaceAddresses `json:"interface-addresses"`
}

// Status is the configured flag, the main process state and the
// outstanding dependency problems.
type Status struct {
	Configured       bool             `json:"configured"`
	Main             MainStatus       `json:"main"`
	DependencyErrors DependencyErrors `json:"dependency-errors"`
}

// MainStatus is the state of a package's main container.
type MainStatus string

const (
	MainStopped   MainStatus = "stopped"
	MainStarting  MainStatus = "starting"
	MainRunning   MainStatus = "running"
	MainStopping  MainStatus = "stopping"
	MainBackingUp MainStatus = "backing-up"
)

// Satisfaction records whether a dependency requirement currently
// holds. New records start Unknown until the dependency is checked.
type Satisfaction string

const (
	SatisfactionUnknown     Satisfaction = "unknown"
	SatisfactionSatisfied   Satisfaction = "satisfied"
	SatisfactionUnsatisfied Satisfaction = "unsatisfied"
)

// CurrentDependencyInfo describes one edge of the dependency graph.
type CurrentDependencyInfo struct {
	Version      pkgid.VersionRange `json:"version"`
	Satisfaction Satisfaction       `json:"satisfaction"`
}

// DependencyErrorType classifies a DependencyError.
type DependencyErrorType string

const (
	DependencyNotInstalled      DependencyErrorType = "not-installed"
	DependencyNotRunning        DependencyErrorType = "not-running"
	DependencyIncorrectVersion  DependencyErrorType = "incorrect-version"
	DependencyConfigUnsatisfied DependencyErrorType = "config-unsatisfied"
	DependencyTransitive        DependencyErrorType = "transitive"
)

// DependencyError is one unmet dependency requirement.
type DependencyError struct {
	Type DependencyErrorType `json:"type"`

	// Expected and Received are set for incorrect-version.
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`

	// Error is set for config-unsatisfied.
	Error string `json:"error,omitempty"`
}

// DependencyErrors maps dependency ids to their problems.
type DependencyErrors map[pkgid.PackageID]DependencyError

// InterfaceAddresses are the network names of one interface.
type InterfaceAddresses struct {
	TorAddress string `json:"tor-address,omitempty"`
	LanAddress string `json:"lan-address,omitempty"`
}
