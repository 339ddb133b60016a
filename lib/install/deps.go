// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"io"
	"time"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manager"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/migration"
	"github.com/bureau-foundation/appmgr/lib/netctl"
	"github.com/bureau-foundation/appmgr/lib/pkgconfig"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/secret"
)

// Resolver looks packages up in the registry. *registry.Client
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, id pkgid.PackageID, versionRange pkgid.VersionRange) (*registry.Resolution, error)
}

// ImageLoader loads image payloads into the container engine.
// *container.Runtime implements it.
type ImageLoader interface {
	LoadImage(ctx context.Context, image io.Reader) error
}

// VolumeManager lays out package volumes. *volume.Manager implements
// it.
type VolumeManager interface {
	Install(pkg pkgid.PackageID, version pkgid.Version, volumes map[pkgid.VolumeID]manifest.Volume) error
	MountsFor(pkg pkgid.PackageID, volumes map[pkgid.VolumeID]manifest.Volume, mounts map[pkgid.VolumeID]string) ([]container.Mount, error)
	Remove(pkg pkgid.PackageID) error
}

// InterfaceController assigns interface addresses. *netctl.Controller
// implements it.
type InterfaceController interface {
	Install(keys netctl.KeyStore, pkg pkgid.PackageID, interfaces map[pkgid.InterfaceID]manifest.Interface) (map[pkgid.InterfaceID]pkgstate.InterfaceAddresses, error)
	TorKeys(keys netctl.KeyStore, pkg pkgid.PackageID) (map[pkgid.InterfaceID]*secret.Buffer, error)
}

// ProcessManagers owns main containers. *manager.Registry implements
// it.
type ProcessManagers interface {
	Add(ctx context.Context, spec manager.Spec) (*manager.Manager, error)
	Get(id pkgid.PackageID) (*manager.Manager, bool)
	Start(ctx context.Context, id pkgid.PackageID) error
	Remove(ctx context.Context, id pkgid.PackageID) error
}

// Migrator runs upgrade migrations. *migration.Runner implements it.
type Migrator interface {
	To(ctx context.Context, previous *manifest.Manifest, target pkgid.Version) (*migration.Result, error)
	From(ctx context.Context, current *manifest.Manifest, source pkgid.Version) (*migration.Result, error)
}

// Configurator re-applies package configuration. *pkgconfig.Engine
// implements it.
type Configurator interface {
	Configure(ctx context.Context, m *manifest.Manifest) (*pkgconfig.Applied, error)
}

// Metrics observes install outcomes.
type Metrics interface {
	InstallStarted(id pkgid.PackageID)
	InstallFinished(id pkgid.PackageID, result string, duration time.Duration)
}

// Install results reported to Metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type noopMetrics struct{}

func (noopMetrics) InstallStarted(pkgid.PackageID)                         {}
func (noopMetrics) InstallFinished(pkgid.PackageID, string, time.Duration) {}
