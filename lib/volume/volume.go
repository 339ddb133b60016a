// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume lays out package volumes under the app-data root and
// resolves an action's volume mounts to container bind mounts.
//
// Directory layout, relative to Root:
//
//	<pkg>/volumes/<volume>                    data
//	<target-pkg>/volumes/<target-volume>/<p>  pointer
//	<pkg>/certificates/<interface>            certificate
//	<pkg>/hidden-services/<interface>         hidden-service
//
// For certificate and hidden-service volumes <pkg> is the volume's
// package-id when set, otherwise the declaring package.
package volume

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// Manager owns the app-data directory tree.
type Manager struct {
	Root   string
	Logger *slog.Logger
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// PathFor returns the host directory backing a volume declared by pkg.
func (m *Manager) PathFor(pkg pkgid.PackageID, id pkgid.VolumeID, volume manifest.Volume) string {
	owner := string(volume.Owner(pkg))
	switch volume.Type {
	case manifest.VolumePointer:
		base := filepath.Join(m.Root, owner, "volumes", string(volume.VolumeID))
		if volume.Path == "" {
			return base
		}
		return filepath.Join(base, filepath.FromSlash(volume.Path))
	case manifest.VolumeCertificate:
		return filepath.Join(m.Root, owner, "certificates", string(volume.InterfaceID))
	case manifest.VolumeHiddenService:
		return filepath.Join(m.Root, owner, "hidden-services", string(volume.InterfaceID))
	default:
		return filepath.Join(m.Root, owner, "volumes", string(id))
	}
}

// Install creates the directories a package owns. Pointer volumes are
// not created: their target belongs to another package, and a missing
// target is only logged since the dependency may be installed later.
func (m *Manager) Install(pkg pkgid.PackageID, version pkgid.Version, volumes map[pkgid.VolumeID]manifest.Volume) error {
	for _, id := range sortedIDs(volumes) {
		volume := volumes[id]
		directory := m.PathFor(pkg, id, volume)

		if volume.Type == manifest.VolumePointer {
			if _, err := os.Stat(directory); err != nil {
				m.logger().Warn("pointer volume target missing",
					"package", pkg,
					"version", version,
					"volume", id,
					"target", volume.PackageID,
					"error", err,
				)
			}
			continue
		}
		if volume.Owner(pkg) != pkg {
			continue
		}
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return fmt.Errorf("creating volume %s of %s: %w", id, pkg, err)
		}
	}
	m.logger().Debug("volumes installed", "package", pkg, "version", version, "count", len(volumes))
	return nil
}

// Remove deletes every directory owned by pkg.
func (m *Manager) Remove(pkg pkgid.PackageID) error {
	directory := filepath.Join(m.Root, string(pkg))
	if err := os.RemoveAll(directory); err != nil {
		return fmt.Errorf("removing volumes of %s: %w", pkg, err)
	}
	return nil
}

// MountsFor resolves an action's mounts (volume id → container path)
// against the package's declared volumes. The result is sorted by
// container path.
func (m *Manager) MountsFor(pkg pkgid.PackageID, volumes map[pkgid.VolumeID]manifest.Volume, mounts map[pkgid.VolumeID]string) ([]container.Mount, error) {
	result := make([]container.Mount, 0, len(mounts))
	for id, target := range mounts {
		volume, ok := volumes[id]
		if !ok {
			return nil, fmt.Errorf("mount of undeclared volume %q", id)
		}
		result = append(result, container.Mount{
			Source:   m.PathFor(pkg, id, volume),
			Target:   target,
			ReadOnly: volume.IsReadOnly(),
		})
	}
	slices.SortFunc(result, func(a, b container.Mount) int {
		return strings.Compare(a.Target, b.Target)
	})
	return result, nil
}

func sortedIDs(volumes map[pkgid.VolumeID]manifest.Volume) []pkgid.VolumeID {
	ids := make([]pkgid.VolumeID, 0, len(volumes))
	for id := range volumes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
