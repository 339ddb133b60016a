// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager keeps one process manager per installed package. A
// manager owns the package's main container and the interface keys the
// main process runs with.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/secret"
)

// DefaultStopGrace is how long Stop waits before the engine kills the
// main process.
const DefaultStopGrace = 30 * time.Second

// Runtime is the subset of *container.Runtime a Registry drives.
type Runtime interface {
	Create(ctx context.Context, action container.Action) (string, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string, grace time.Duration) error
	Restart(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// Spec describes the main process of one package version.
type Spec struct {
	Main container.Action

	// TorKeys are the expanded interface private keys. The Registry
	// takes ownership and closes them when the manager is replaced or
	// removed.
	TorKeys map[pkgid.InterfaceID]*secret.Buffer
}

// Manager is the process manager of one package.
type Manager struct {
	Package     pkgid.PackageID
	Version     pkgid.Version
	ContainerID string

	mu      sync.Mutex
	status  pkgstate.MainStatus
	torKeys map[pkgid.InterfaceID]*secret.Buffer
}

// Status returns the main container's state as last driven by the
// Registry.
func (m *Manager) Status() pkgstate.MainStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Interfaces lists the interfaces the manager holds keys for.
func (m *Manager) Interfaces() []pkgid.InterfaceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]pkgid.InterfaceID, 0, len(m.torKeys))
	for id := range m.torKeys {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) setStatus(status pkgstate.MainStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.torKeys {
		key.Close()
	}
	m.torKeys = nil
}

// Registry maps package ids to managers. Safe for concurrent use;
// operations on the same package are serialized by the caller (the
// install pipeline holds the package's slot).
type Registry struct {
	runtime Runtime
	logger  *slog.Logger
	grace   time.Duration

	mu       sync.Mutex
	managers map[pkgid.PackageID]*Manager
}

// NewRegistry returns an empty Registry driving runtime.
func NewRegistry(runtime Runtime, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		runtime:  runtime,
		logger:   logger,
		grace:    DefaultStopGrace,
		managers: make(map[pkgid.PackageID]*Manager),
	}
}

// Add creates the main container for spec and registers its manager,
// replacing (and removing the container of) any earlier manager of
// the same package. The container is created stopped.
func (r *Registry) Add(ctx context.Context, spec Spec) (*Manager, error) {
	id := spec.Main.Package
	if previous, ok := r.Get(id); ok {
		if err := r.Remove(ctx, previous.Package); err != nil {
			closeKeys(spec.TorKeys)
			return nil, fmt.Errorf("replacing manager of %s: %w", id, err)
		}
	} else if err := r.runtime.Remove(ctx, container.ContainerName(id)); err != nil {
		closeKeys(spec.TorKeys)
		return nil, fmt.Errorf("removing stale container of %s: %w", id, err)
	}

	containerID, err := r.runtime.Create(ctx, spec.Main)
	if err != nil {
		closeKeys(spec.TorKeys)
		return nil, fmt.Errorf("creating main container of %s: %w", id, err)
	}
	manager := &Manager{
		Package:     id,
		Version:     spec.Main.Version,
		ContainerID: containerID,
		status:      pkgstate.MainStopped,
		torKeys:     spec.TorKeys,
	}

	r.mu.Lock()
	r.managers[id] = manager
	r.mu.Unlock()

	r.logger.Info("process manager added",
		"package", id,
		"version", manager.Version,
		"container", containerID,
		"interfaces", len(spec.TorKeys),
	)
	return manager, nil
}

// Get returns the manager of id.
func (r *Registry) Get(id pkgid.PackageID) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	manager, ok := r.managers[id]
	return manager, ok
}

func (r *Registry) require(id pkgid.PackageID) (*Manager, error) {
	manager, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("no process manager for %s", id)
	}
	return manager, nil
}

// Start starts the package's main container.
func (r *Registry) Start(ctx context.Context, id pkgid.PackageID) error {
	manager, err := r.require(id)
	if err != nil {
		return err
	}
	manager.setStatus(pkgstate.MainStarting)
	if err := r.runtime.Start(ctx, container.ContainerName(id)); err != nil {
		manager.setStatus(pkgstate.MainStopped)
		return fmt.Errorf("starting %s: %w", id, err)
	}
	manager.setStatus(pkgstate.MainRunning)
	r.logger.Info("package started", "package", id, "version", manager.Version)
	return nil
}

// Stop stops the package's main container.
func (r *Registry) Stop(ctx context.Context, id pkgid.PackageID) error {
	manager, err := r.require(id)
	if err != nil {
		return err
	}
	previous := manager.Status()
	manager.setStatus(pkgstate.MainStopping)
	if err := r.runtime.Stop(ctx, container.ContainerName(id), r.grace); err != nil {
		manager.setStatus(previous)
		return fmt.Errorf("stopping %s: %w", id, err)
	}
	manager.setStatus(pkgstate.MainStopped)
	r.logger.Info("package stopped", "package", id)
	return nil
}

// Restart restarts the package's main container.
func (r *Registry) Restart(ctx context.Context, id pkgid.PackageID) error {
	manager, err := r.require(id)
	if err != nil {
		return err
	}
	if err := r.runtime.Restart(ctx, container.ContainerName(id)); err != nil {
		return fmt.Errorf("restarting %s: %w", id, err)
	}
	manager.setStatus(pkgstate.MainRunning)
	return nil
}

// Remove removes the package's container and forgets its manager.
// Removing an unknown package is a no-op.
func (r *Registry) Remove(ctx context.Context, id pkgid.PackageID) error {
	r.mu.Lock()
	manager, ok := r.managers[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.runtime.Remove(ctx, container.ContainerName(id)); err != nil {
		return fmt.Errorf("removing container of %s: %w", id, err)
	}

	r.mu.Lock()
	if r.managers[id] == manager {
		delete(r.managers, id)
	}
	r.mu.Unlock()
	manager.release()
	r.logger.Info("process manager removed", "package", id)
	return nil
}

// Close releases every manager's keys without touching containers.
func (r *Registry) Close() {
	r.mu.Lock()
	managers := r.managers
	r.managers = make(map[pkgid.PackageID]*Manager)
	r.mu.Unlock()
	for _, manager := range managers {
		manager.release()
	}
}

func closeKeys(keys map[pkgid.InterfaceID]*secret.Buffer) {
	for _, key := range keys {
		key.Close()
	}
}
