// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"github.com/bureau-foundation/appmgr/lib/iofmt"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// Manifest describes one version of one package.
type Manifest struct {
	ID              pkgid.PackageID `json:"id"`
	Version         pkgid.Version   `json:"version"`
	Title           string          `json:"title"`
	Description     Description     `json:"description"`
	ReleaseNotes    string          `json:"release-notes"`
	License         string          `json:"license"`
	Alerts          Alerts          `json:"alerts"`
	MinOSVersion    pkgid.Version   `json:"min-os-version"`
	HasInstructions bool            `json:"has-instructions"`
	Assets          Assets          `json:"assets"`

	// Main is the long-running container action.
	Main DockerAction `json:"main"`

	// Config is present when the package declares a configuration
	// schema; its get/set actions read and write the configuration.
	Config *ConfigActions `json:"config,omitempty"`

	Volumes      map[pkgid.VolumeID]Volume          `json:"volumes"`
	Interfaces   map[pkgid.InterfaceID]Interface    `json:"interfaces"`
	Backup       *BackupActions                     `json:"backup,omitempty"`
	Migrations   Migrations                         `json:"migrations"`
	Dependencies map[pkgid.PackageID]DependencyInfo `json:"dependencies"`
}

// Description is the short and long form shown in the marketplace.
type Description struct {
	Short string `json:"short"`
	Long  string `json:"long"`
}

// Alerts are messages shown to the user before the named operation.
type Alerts struct {
	Install   string `json:"install,omitempty"`
	Uninstall string `json:"uninstall,omitempty"`
	Restore   string `json:"restore,omitempty"`
	Start     string `json:"start,omitempty"`
}

// Assets describes the static files packaged alongside the manifest.
type Assets struct {
	// IconType is the icon's file extension. Empty means "png".
	IconType string `json:"icon-type,omitempty"`
}

// DefaultIconType is used when a manifest does not set assets.icon-type.
const DefaultIconType = "png"

// Icon returns the icon's file extension.
func (a Assets) Icon() string {
	if a.IconType == "" {
		return DefaultIconType
	}
	return a.IconType
}

// DockerAction runs one of the package's images.
type DockerAction struct {
	Image      pkgid.ImageID             `json:"image"`
	Entrypoint string                    `json:"entrypoint"`
	Args       []string                  `json:"args,omitempty"`
	Mounts     map[pkgid.VolumeID]string `json:"mounts,omitempty"`

	// IOFormat is how input is written to stdin and output read from
	// stdout. Empty means raw text.
	IOFormat iofmt.Format `json:"io-format,omitempty"`

	ShmSizeMB uint64 `json:"shm-size-mb,omitempty"`
}

// ConfigActions read (Get) and write (Set) the package configuration.
type ConfigActions struct {
	Get DockerAction `json:"get"`
	Set DockerAction `json:"set"`
}

// BackupActions produce and restore a backup of the package's volumes.
type BackupActions struct {
	Create  DockerAction `json:"create"`
	Restore DockerAction `json:"restore"`
}

// Migrations map version range expressions to migration actions.
//
// From runs on the new version when upgrading from a version in the
// range; To runs on the old version when upgrading to a version in the
// range.
type Migrations struct {
	From map[string]DockerAction `json:"from,omitempty"`
	To   map[string]DockerAction `json:"to,omitempty"`
}

// DependencyInfo declares a dependency on another package.
type DependencyInfo struct {
	Version     pkgid.VersionRange `json:"version"`
	Optional    bool               `json:"optional,omitempty"`
	Description string             `json:"description,omitempty"`
}

// RequiredDependencies returns the ids of the non-optional
// dependencies.
func (m *Manifest) RequiredDependencies() map[pkgid.PackageID]DependencyInfo {
	required := make(map[pkgid.PackageID]DependencyInfo)
	for id, info := range m.Dependencies {
		if !info.Optional {
			required[id] = info
		}
	}
	return required
}
