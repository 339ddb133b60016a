// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgconfig drives a package's configuration actions.
//
// A package that declares config actions exposes its current
// configuration through "get" and accepts a configuration through
// "set". Configure re-applies the configuration the package already
// holds, which is how an upgraded package is brought back to a
// configured state after its migrations report the configuration is
// still valid.
package pkgconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// ErrNoConfiguration is returned by Configure when the package reports
// no stored configuration.
var ErrNoConfiguration = errors.New("package has no stored configuration")

// Executor runs actions. *container.Runtime implements it.
type Executor interface {
	Execute(ctx context.Context, action container.Action, input any) (*container.Output, error)
}

// Mounter resolves action mounts. *volume.Manager implements it.
type Mounter interface {
	MountsFor(pkg pkgid.PackageID, volumes map[pkgid.VolumeID]manifest.Volume, mounts map[pkgid.VolumeID]string) ([]container.Mount, error)
}

// Current is the output of a package's config "get" action.
type Current struct {
	Spec   any            `json:"spec,omitempty"`
	Config map[string]any `json:"config"`
}

// Applied is the output of a package's config "set" action.
type Applied struct {
	// DependsOn lists, per dependency, the configuration paths the new
	// configuration relies on.
	DependsOn map[pkgid.PackageID][]string `json:"depends-on,omitempty"`
}

// Engine runs configuration actions.
type Engine struct {
	Executor Executor
	Volumes  Mounter
	Logger   *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Get runs the package's "get" action.
func (e *Engine) Get(ctx context.Context, m *manifest.Manifest) (*Current, error) {
	if m.Config == nil {
		return nil, fmt.Errorf("%s declares no config actions", m.ID)
	}
	output, err := e.execute(ctx, m, "config-get", m.Config.Get, nil)
	if err != nil {
		return nil, err
	}
	var current Current
	if err := output.Decode(&current); err != nil {
		return nil, fmt.Errorf("config-get of %s: decoding output: %w", m.ID, err)
	}
	return &current, nil
}

// Set runs the package's "set" action with config.
func (e *Engine) Set(ctx context.Context, m *manifest.Manifest, config map[string]any) (*Applied, error) {
	if m.Config == nil {
		return nil, fmt.Errorf("%s declares no config actions", m.ID)
	}
	output, err := e.execute(ctx, m, "config-set", m.Config.Set, config)
	if err != nil {
		return nil, err
	}
	var applied Applied
	if len(output.Raw) > 0 {
		if err := output.Decode(&applied); err != nil {
			return nil, fmt.Errorf("config-set of %s: decoding output: %w", m.ID, err)
		}
	}
	return &applied, nil
}

// Configure re-applies the package's stored configuration. A package
// without config actions is trivially configured and nothing runs.
func (e *Engine) Configure(ctx context.Context, m *manifest.Manifest) (*Applied, error) {
	if m.Config == nil {
		return &Applied{}, nil
	}
	current, err := e.Get(ctx, m)
	if err != nil {
		return nil, err
	}
	if current.Config == nil {
		return nil, fmt.Errorf("configuring %s: %w", m.ID, ErrNoConfiguration)
	}
	applied, err := e.Set(ctx, m, current.Config)
	if err != nil {
		return nil, err
	}
	e.logger().Info("package configured", "package", m.ID, "version", m.Version, "dependencies", len(applied.DependsOn))
	return applied, nil
}

func (e *Engine) execute(ctx context.Context, m *manifest.Manifest, name string, action manifest.DockerAction, input any) (*container.Output, error) {
	mounts, err := e.Volumes.MountsFor(m.ID, m.Volumes, action.Mounts)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, m.ID, err)
	}
	output, err := e.Executor.Execute(ctx, container.Action{
		Package: m.ID,
		Version: m.Version,
		Name:    name,
		Action:  action,
		Mounts:  mounts,
	}, input)
	if err != nil {
		return nil, fmt.Errorf("%s of %s: %w", name, m.ID, err)
	}
	return output, nil
}
