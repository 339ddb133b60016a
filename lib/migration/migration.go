// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package migration runs the data migrations a manifest declares for a
// version change.
//
// A manifest's "to" migrations run in the image of the version being
// replaced, selected by the incoming version. Its "from" migrations run
// in the image of the incoming version, selected by the version being
// replaced. Range keys are tried in sorted order and the first range
// containing the other version wins. The action receives the other
// version on stdin (when it declares an io-format) and reports whether
// the package's configuration is still valid.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// Executor runs actions. *container.Runtime implements it.
type Executor interface {
	Execute(ctx context.Context, action container.Action, input any) (*container.Output, error)
}

// Mounter resolves action mounts. *volume.Manager implements it.
type Mounter interface {
	MountsFor(pkg pkgid.PackageID, volumes map[pkgid.VolumeID]manifest.Volume, mounts map[pkgid.VolumeID]string) ([]container.Mount, error)
}

// Result is what a migration action reports.
type Result struct {
	Configured bool `json:"configured"`
}

// Runner runs migrations.
type Runner struct {
	Executor Executor
	Volumes  Mounter
	Logger   *slog.Logger
}

// To runs previous's "to" migration for an upgrade to target. It
// returns nil when no range matches.
func (r *Runner) To(ctx context.Context, previous *manifest.Manifest, target pkgid.Version) (*Result, error) {
	return r.run(ctx, previous, "migration-to", previous.Migrations.To, target)
}

// From runs current's "from" migration for an upgrade from source. It
// returns nil when no range matches.
func (r *Runner) From(ctx context.Context, current *manifest.Manifest, source pkgid.Version) (*Result, error) {
	return r.run(ctx, current, "migration-from", current.Migrations.From, source)
}

func (r *Runner) run(ctx context.Context, m *manifest.Manifest, name string, migrations map[string]manifest.DockerAction, other pkgid.Version) (*Result, error) {
	rangeKey, action, ok, err := Select(migrations, other)
	if err != nil || !ok {
		return nil, err
	}

	mounts, err := r.Volumes.MountsFor(m.ID, m.Volumes, action.Mounts)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, m.ID, err)
	}
	var input any
	if action.IOFormat != "" {
		input = other.String()
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Info("running migration",
		"package", m.ID,
		"version", m.Version,
		"migration", name,
		"range", rangeKey,
		"other_version", other,
	)

	output, err := r.Executor.Execute(ctx, container.Action{
		Package: m.ID,
		Version: m.Version,
		Name:    name,
		Action:  action,
		Mounts:  mounts,
	}, input)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, m.ID, err)
	}
	var result Result
	if err := output.Decode(&result); err != nil {
		return nil, fmt.Errorf("%s of %s: decoding result: %w", name, m.ID, err)
	}
	return &result, nil
}

// Select returns the migration whose range contains version, trying
// range keys in sorted order.
func Select(migrations map[string]manifest.DockerAction, version pkgid.Version) (string, manifest.DockerAction, bool, error) {
	keys := make([]string, 0, len(migrations))
	for key := range migrations {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		versionRange, err := pkgid.ParseVersionRange(key)
		if err != nil {
			return "", manifest.DockerAction{}, false, fmt.Errorf("migration range %q: %w", key, err)
		}
		if version.Satisfies(versionRange) {
			return key, migrations[key], true, nil
		}
	}
	return "", manifest.DockerAction{}, false, nil
}
