// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manager"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/netctl"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/secret"
)

// previousInstall is what an update replaced.
type previousInstall struct {
	manifest   *manifest.Manifest
	configured bool
}

// commit installs volumes and interfaces, registers the process
// manager and writes the installed slot. The secret store commits
// first; see StoreCommitError. For an update it returns the replaced
// installation.
func (p *Pipeline) commit(ctx context.Context, job *Job, m *manifest.Manifest, logger *slog.Logger) (_ *previousInstall, err error) {
	if err := p.config.Volumes.Install(m.ID, m.Version, m.Volumes); err != nil {
		return nil, err
	}

	secretsTx, err := p.config.Secrets.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer secretsTx.Rollback()

	addresses, err := p.config.Interfaces.Install(secretsTx, m.ID, m.Interfaces)
	if err != nil {
		return nil, fmt.Errorf("installing interfaces: %w", err)
	}
	if err := p.addManager(ctx, secretsTx, m); err != nil {
		return nil, err
	}
	if !job.Updating {
		defer func() {
			if err == nil {
				return
			}
			if removeErr := p.config.Managers.Remove(context.WithoutCancel(ctx), m.ID); removeErr != nil {
				logger.Warn("removing process manager of failed install", "error", removeErr)
			}
		}()
	}

	registryTx, err := p.config.Packages.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer registryTx.Rollback()

	current, err := registryTx.Get(m.ID)
	if err != nil {
		return nil, err
	}
	var previous *previousInstall
	// Dependencies whose dependents change: the new manifest's, plus
	// the replaced version's so a dropped dependency forgets this
	// package.
	touched := make(map[pkgid.PackageID]struct{})
	switch slot := current.(type) {
	case *pkgstate.Installing:
	case *pkgstate.Updating:
		previous = &previousInstall{manifest: slot.Manifest, configured: slot.Installed.Status.Configured}
		for dependency := range slot.Installed.CurrentDependencies {
			touched[dependency] = struct{}{}
		}
	case *pkgstate.Installed, nil:
		return nil, fmt.Errorf("slot of %s changed while installing (now %s)", m.ID, stateName(current))
	default:
		panic(fmt.Sprintf("install: unknown entry type %T", current))
	}

	installed, err := buildInstalled(registryTx, m, addresses)
	if err != nil {
		return nil, err
	}
	err = registryTx.Put(m.ID, &pkgstate.Installed{
		Installed:   installed,
		Manifest:    m,
		StaticFiles: pkgstate.NewStaticFiles(m.ID, m.Version, m.Assets.Icon()),
	})
	if err != nil {
		return nil, err
	}
	for dependency := range installed.CurrentDependencies {
		touched[dependency] = struct{}{}
	}
	for dependency := range touched {
		if err := refreshDependents(registryTx, dependency); err != nil {
			return nil, err
		}
	}

	if err := secretsTx.Commit(); err != nil {
		return nil, err
	}
	if err := p.commitRegistry(registryTx); err != nil {
		commitErr := &StoreCommitError{Store: "package registry", Package: m.ID, Version: m.Version, Err: err}
		marker, markerErr := p.config.Secrets.AddMarker(context.WithoutCancel(ctx), m.ID, m.Version, err.Error())
		if markerErr != nil {
			commitErr.Err = errors.Join(err, markerErr)
		} else {
			commitErr.Marker = marker.ID
		}
		return nil, commitErr
	}
	logger.Info("install committed", "interfaces", len(addresses), "dependencies", len(installed.CurrentDependencies))
	return previous, nil
}

// addManager registers the process manager of m's main action with the
// interface keys held in keys. The container is created stopped.
func (p *Pipeline) addManager(ctx context.Context, keys netctl.KeyStore, m *manifest.Manifest) error {
	torKeys, err := p.config.Interfaces.TorKeys(keys, m.ID)
	if err != nil {
		return fmt.Errorf("reading interface keys: %w", err)
	}
	mounts, err := p.config.Volumes.MountsFor(m.ID, m.Volumes, m.Main.Mounts)
	if err != nil {
		closeKeys(torKeys)
		return fmt.Errorf("resolving main mounts: %w", err)
	}
	_, err = p.config.Managers.Add(ctx, manager.Spec{
		Main: container.Action{
			Package: m.ID,
			Version: m.Version,
			Name:    "main",
			Action:  m.Main,
			Mounts:  mounts,
		},
		TorKeys: torKeys,
	})
	return err
}

func buildInstalled(tx *pkgstate.Tx, m *manifest.Manifest, addresses map[pkgid.InterfaceID]pkgstate.InterfaceAddresses) (pkgstate.InstalledPackageDataEntry, error) {
	required := m.RequiredDependencies()
	current := make(map[pkgid.PackageID]pkgstate.CurrentDependencyInfo, len(required))
	dependencyErrors := make(pkgstate.DependencyErrors)
	for id, info := range required {
		current[id] = pkgstate.CurrentDependencyInfo{Version: info.Version, Satisfaction: pkgstate.SatisfactionUnknown}
		entry, err := tx.Get(id)
		if err != nil {
			return pkgstate.InstalledPackageDataEntry{}, err
		}
		if problem, ok := dependencyError(entry, info); ok {
			dependencyErrors[id] = problem
		}
	}

	dependents, err := dependentsOf(tx, m.ID)
	if err != nil {
		return pkgstate.InstalledPackageDataEntry{}, err
	}
	return pkgstate.InstalledPackageDataEntry{
		Status: pkgstate.Status{
			Configured:       m.Config == nil,
			Main:             pkgstate.MainStopped,
			DependencyErrors: dependencyErrors,
		},
		Manifest:            m,
		CurrentDependencies: current,
		CurrentDependents:   dependents,
		InterfaceAddresses:  addresses,
	}, nil
}

// installedRecord returns the installed record an entry carries: the
// settled one, or the previous version's during an update.
func installedRecord(entry pkgstate.Entry) *pkgstate.InstalledPackageDataEntry {
	switch typed := entry.(type) {
	case *pkgstate.Installed:
		return &typed.Installed
	case *pkgstate.Updating:
		return &typed.Installed
	default:
		return nil
	}
}

func dependencyError(entry pkgstate.Entry, info manifest.DependencyInfo) (pkgstate.DependencyError, bool) {
	record := installedRecord(entry)
	if record == nil {
		return pkgstate.DependencyError{Type: pkgstate.DependencyNotInstalled}, true
	}
	version := record.Manifest.Version
	if !version.Satisfies(info.Version) {
		return pkgstate.DependencyError{
			Type:     pkgstate.DependencyIncorrectVersion,
			Expected: info.Version.String(),
			Received: version.String(),
		}, true
	}
	if record.Status.Main != pkgstate.MainRunning {
		return pkgstate.DependencyError{Type: pkgstate.DependencyNotRunning}, true
	}
	return pkgstate.DependencyError{}, false
}

// dependentsOf scans every slot for installed packages that require id.
func dependentsOf(tx *pkgstate.Tx, id pkgid.PackageID) (map[pkgid.PackageID]pkgstate.CurrentDependencyInfo, error) {
	keys, err := tx.Keys(true)
	if err != nil {
		return nil, err
	}
	dependents := make(map[pkgid.PackageID]pkgstate.CurrentDependencyInfo)
	for _, key := range keys {
		if key == id {
			continue
		}
		entry, err := tx.Get(key)
		if err != nil {
			return nil, err
		}
		record := installedRecord(entry)
		if record == nil {
			continue
		}
		if info, ok := record.CurrentDependencies[id]; ok {
			dependents[key] = info
		}
	}
	return dependents, nil
}

// refreshDependents recomputes the dependents of an installed package.
func refreshDependents(tx *pkgstate.Tx, id pkgid.PackageID) error {
	entry, err := tx.Get(id)
	if err != nil {
		return err
	}
	record := installedRecord(entry)
	if record == nil {
		return nil
	}
	record.CurrentDependents, err = dependentsOf(tx, id)
	if err != nil {
		return err
	}
	return tx.Put(id, entry)
}

// setStatus records the outcome of an update's reconfiguration.
func (p *Pipeline) setStatus(ctx context.Context, job *Job, configured, running bool) error {
	return p.config.Packages.Update(ctx, func(tx *pkgstate.Tx) error {
		entry, err := tx.Get(job.Package)
		if err != nil {
			return err
		}
		installed, ok := entry.(*pkgstate.Installed)
		if !ok {
			return fmt.Errorf("slot of %s changed while updating (now %s)", job.Package, stateName(entry))
		}
		installed.Installed.Status.Configured = configured
		installed.Installed.Status.Main = pkgstate.MainStopped
		if running {
			installed.Installed.Status.Main = pkgstate.MainRunning
		}
		return tx.Put(job.Package, installed)
	})
}

func stateName(entry pkgstate.Entry) string {
	if entry == nil {
		return "absent"
	}
	return string(entry.State())
}

func closeKeys(keys map[pkgid.InterfaceID]*secret.Buffer) {
	for _, key := range keys {
		key.Close()
	}
}
