// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/secretstore"
)

// abandoned describes a transient slot that restoreSlot undid. For an
// update, restored is the installed value put back.
type abandoned struct {
	state    pkgstate.State
	version  pkgid.Version
	restored *pkgstate.Installed
}

// restoreSlot undoes a transient slot: an installing slot is deleted,
// an updating slot goes back to the installed value it replaced.
func (p *Pipeline) restoreSlot(ctx context.Context, id pkgid.PackageID) (abandoned, error) {
	var result abandoned
	err := p.config.Packages.Update(ctx, func(tx *pkgstate.Tx) error {
		entry, err := tx.Get(id)
		if err != nil {
			return err
		}
		switch slot := entry.(type) {
		case nil:
			return fmt.Errorf("%s is not installed", id)
		case *pkgstate.Installed:
			return fmt.Errorf("%s is installed; nothing to clean up", id)
		case *pkgstate.Installing:
			result = abandoned{state: pkgstate.StateInstalling, version: slot.Manifest.Version}
			return tx.Delete(id)
		case *pkgstate.Updating:
			restored := &pkgstate.Installed{
				Installed:   slot.Installed,
				Manifest:    slot.Manifest,
				StaticFiles: slot.StaticFiles,
			}
			result = abandoned{state: pkgstate.StateUpdating, version: slot.Incoming.Version, restored: restored}
			return tx.Put(id, restored)
		default:
			panic(fmt.Sprintf("install: unknown entry type %T", entry))
		}
	})
	return result, err
}

// Cleanup recovers a package whose install failed. An installing slot
// is deleted along with the package's volumes and interface keys; an
// updating slot is restored to the previous installed value, and the
// previous version's process manager is put back if the update had
// already replaced it. In both cases the abandoned version's cache and
// public directories are removed and the package is cleared from the
// broken packages set.
func (p *Pipeline) Cleanup(ctx context.Context, id pkgid.PackageID) error {
	if p.active(id) {
		return fmt.Errorf("install of %s is still running", id)
	}
	undone, err := p.restoreSlot(ctx, id)
	if err != nil {
		return err
	}

	var errs []error
	for _, directory := range []string{p.cacheDir(id, undone.version), p.publicDir(id, undone.version)} {
		if err := os.RemoveAll(directory); err != nil {
			errs = append(errs, err)
		}
	}
	if undone.state == pkgstate.StateUpdating {
		if err := p.restoreManager(ctx, undone.restored); err != nil {
			errs = append(errs, err)
		}
	}
	if undone.state == pkgstate.StateInstalling {
		if err := p.config.Managers.Remove(ctx, id); err != nil {
			errs = append(errs, err)
		}
		if err := p.config.Volumes.Remove(id); err != nil {
			errs = append(errs, err)
		}
		if _, err := p.config.Secrets.DeletePackageKeys(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.config.Packages.ClearBroken(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cleaning up %s: %w", id, err)
	}
	p.logger.Info("install cleaned up", "package", id, "version", undone.version, "state", undone.state)
	return nil
}

// restoreManager registers the process manager of a restored
// installation, starting it if the installation was running. A manager
// already at the restored version is left alone.
func (p *Pipeline) restoreManager(ctx context.Context, restored *pkgstate.Installed) error {
	m := restored.Manifest
	if current, ok := p.config.Managers.Get(m.ID); ok && current.Version.Equal(m.Version) {
		return nil
	}

	keys, err := p.config.Secrets.Begin(ctx)
	if err != nil {
		return err
	}
	defer keys.Rollback()
	if err := p.addManager(ctx, keys, m); err != nil {
		return fmt.Errorf("restoring process manager of %s@%s: %w", m.ID, m.Version, err)
	}
	if restored.Installed.Status.Main == pkgstate.MainRunning {
		if err := p.config.Managers.Start(ctx, m.ID); err != nil {
			return err
		}
	}
	p.logger.Info("process manager restored", "package", m.ID, "version", m.Version)
	return nil
}

// ReconcileAction is what Reconcile did with one marker.
type ReconcileAction string

const (
	// ReconcileCommitted: the registry holds the install after all.
	ReconcileCommitted ReconcileAction = "committed"

	// ReconcileKeysDeleted: the install never landed and the package
	// has no installed version, so its keys were orphaned.
	ReconcileKeysDeleted ReconcileAction = "keys-deleted"

	// ReconcileKeysKept: an installed (or updating) version still uses
	// the keys.
	ReconcileKeysKept ReconcileAction = "keys-kept"

	// ReconcileDeferred: an install of the package is running; the
	// marker is left for a later pass.
	ReconcileDeferred ReconcileAction = "deferred"
)

// ReconcileOutcome is the handling of one marker.
type ReconcileOutcome struct {
	Marker      secretstore.Marker `json:"marker"`
	Action      ReconcileAction    `json:"action"`
	KeysRemoved int                `json:"keys-removed,omitempty"`
}

// Reconcile repairs the secret store after failed registry commits.
// Every marker whose package is not being installed is resolved and
// removed.
func (p *Pipeline) Reconcile(ctx context.Context) ([]ReconcileOutcome, error) {
	markers, err := p.config.Secrets.Markers(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ReconcileOutcome, 0, len(markers))
	for _, marker := range markers {
		outcome := ReconcileOutcome{Marker: marker}
		if p.active(marker.Package) {
			outcome.Action = ReconcileDeferred
			outcomes = append(outcomes, outcome)
			continue
		}

		entry, err := p.config.Packages.Get(ctx, marker.Package)
		if err != nil {
			return outcomes, err
		}
		switch slot := entry.(type) {
		case *pkgstate.Installed:
			outcome.Action = ReconcileKeysKept
			if slot.Manifest.Version.Equal(marker.Version) {
				outcome.Action = ReconcileCommitted
			}
		case *pkgstate.Updating:
			outcome.Action = ReconcileKeysKept
		case *pkgstate.Installing, nil:
			removed, err := p.config.Secrets.DeletePackageKeys(ctx, marker.Package)
			if err != nil {
				return outcomes, err
			}
			outcome.Action = ReconcileKeysDeleted
			outcome.KeysRemoved = removed
		default:
			panic(fmt.Sprintf("install: unknown entry type %T", entry))
		}

		if err := p.config.Secrets.DeleteMarker(ctx, marker.ID); err != nil {
			return outcomes, err
		}
		p.logger.Info("reconciliation marker resolved",
			"marker", marker.ID,
			"package", marker.Package,
			"version", marker.Version,
			"action", outcome.Action,
			"keys_removed", outcome.KeysRemoved,
		)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
