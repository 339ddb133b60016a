// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// Validate checks the structural rules that decoding alone cannot:
// required fields, volume union consistency, that every mount names a
// declared volume, and that migration keys parse as version ranges.
// All problems are reported together.
func (m *Manifest) Validate() error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if m.Version.IsZero() {
		errs = append(errs, errors.New("version is required"))
	}
	if m.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if icon := m.Assets.Icon(); !isIconType(icon) {
		errs = append(errs, fmt.Errorf("assets.icon-type %q must be 1-8 lowercase letters or digits", icon))
	}

	for id, volume := range m.Volumes {
		if err := volume.validate(); err != nil {
			errs = append(errs, fmt.Errorf("volumes.%s: %w", id, err))
		}
	}
	for id := range m.Dependencies {
		if id == m.ID {
			errs = append(errs, fmt.Errorf("dependencies.%s: a package cannot depend on itself", id))
		}
	}

	errs = append(errs, m.validateAction("main", m.Main)...)
	if m.Config != nil {
		errs = append(errs, m.validateAction("config.get", m.Config.Get)...)
		errs = append(errs, m.validateAction("config.set", m.Config.Set)...)
	}
	if m.Backup != nil {
		errs = append(errs, m.validateAction("backup.create", m.Backup.Create)...)
		errs = append(errs, m.validateAction("backup.restore", m.Backup.Restore)...)
	}
	for direction, actions := range map[string]map[string]DockerAction{"from": m.Migrations.From, "to": m.Migrations.To} {
		for expression, action := range actions {
			if _, err := pkgid.ParseVersionRange(expression); err != nil {
				errs = append(errs, fmt.Errorf("migrations.%s: %w", direction, err))
			}
			errs = append(errs, m.validateAction(fmt.Sprintf("migrations.%s[%s]", direction, expression), action)...)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid manifest: %w", errors.Join(errs...))
}

func (m *Manifest) validateAction(name string, action DockerAction) []error {
	var errs []error
	if action.Image == "" {
		errs = append(errs, fmt.Errorf("%s.image is required", name))
	}
	// Sorted so the joined error reads the same on every run.
	mounts := make([]pkgid.VolumeID, 0, len(action.Mounts))
	for volume := range action.Mounts {
		mounts = append(mounts, volume)
	}
	slices.Sort(mounts)
	for _, volume := range mounts {
		if _, declared := m.Volumes[volume]; !declared {
			errs = append(errs, fmt.Errorf("%s.mounts: volume %q is not declared", name, volume))
		}
	}
	return errs
}

func isIconType(extension string) bool {
	if len(extension) == 0 || len(extension) > 8 {
		return false
	}
	for index := 0; index < len(extension); index++ {
		c := extension[index]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// IncompatibleError reports a package that needs a newer host.
type IncompatibleError struct {
	Package  pkgid.PackageID
	Required pkgid.Version
	Host     pkgid.Version
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("package %s requires host version %s or newer (running %s)", e.Package, e.Required, e.Host)
}

// IsIncompatible reports whether err is (or wraps) an
// *IncompatibleError.
func IsIncompatible(err error) bool {
	var target *IncompatibleError
	return errors.As(err, &target)
}

// CheckHost returns an *IncompatibleError when the manifest's
// min-os-version is newer than host. A manifest without a minimum is
// compatible with every host.
func (m *Manifest) CheckHost(host pkgid.Version) error {
	if m.MinOSVersion.IsZero() || m.MinOSVersion.Compare(host) <= 0 {
		return nil
	}
	return &IncompatibleError{Package: m.ID, Required: m.MinOSVersion, Host: host}
}
