// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/codec"
	"github.com/bureau-foundation/appmgr/lib/install"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/schema"
	"github.com/bureau-foundation/appmgr/lib/service"
	"github.com/bureau-foundation/appmgr/lib/version"
)

// installer is the part of *install.Pipeline the socket actions use.
type installer interface {
	Begin(ctx context.Context, target string) (*install.Job, error)
	Progress(ctx context.Context, id pkgid.PackageID) (progress.Snapshot, error)
	Active() []pkgid.PackageID
	Cleanup(ctx context.Context, id pkgid.PackageID) error
	Reconcile(ctx context.Context) ([]install.ReconcileOutcome, error)
}

// Daemon holds the state behind appmgrd's socket actions.
type Daemon struct {
	installer installer
	packages  *pkgstate.Store
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

// registerActions registers all socket API actions on the server.
func (d *Daemon) registerActions(server *service.SocketServer) {
	server.Handle(schema.ActionHealth, d.handleHealth)

	server.Handle(schema.ActionInstall, d.handleInstall)
	server.Handle(schema.ActionProgress, d.handleProgress)
	server.Handle(schema.ActionStatus, d.handleStatus)
	server.Handle(schema.ActionList, d.handleList)

	// Recovery.
	server.Handle(schema.ActionBroken, d.handleBroken)
	server.Handle(schema.ActionCleanup, d.handleCleanup)
	server.Handle(schema.ActionReconcile, d.handleReconcile)
}

// decodePackage decodes a schema.PackageRequest and parses its id.
func decodePackage(raw []byte) (pkgid.PackageID, error) {
	var request schema.PackageRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return "", service.WithCode(service.CodeInvalid, fmt.Errorf("invalid request: %w", err))
	}
	if request.Package == "" {
		return "", service.WithCode(service.CodeInvalid, errors.New("missing required field: package"))
	}
	id, err := pkgid.ParsePackageID(request.Package)
	if err != nil {
		return "", service.WithCode(service.CodeInvalid, err)
	}
	return id, nil
}

// --- Handlers ---

func (d *Daemon) handleHealth(ctx context.Context, raw []byte) (any, error) {
	active := d.installer.Active()
	slices.Sort(active)
	return schema.HealthResponse{
		Version:       version.Info(),
		UptimeSeconds: d.clock.Now().Sub(d.startedAt).Seconds(),
		Installing:    active,
	}, nil
}

// handleInstall starts an install and returns once the package's slot
// has been claimed. The install continues in the background; callers
// follow it with "progress".
func (d *Daemon) handleInstall(ctx context.Context, raw []byte) (any, error) {
	var request schema.PackageRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, service.WithCode(service.CodeInvalid, fmt.Errorf("invalid request: %w", err))
	}
	if request.Package == "" {
		return nil, service.WithCode(service.CodeInvalid, errors.New("missing required field: package"))
	}
	if _, err := pkgid.ParseTarget(request.Package); err != nil {
		return nil, service.WithCode(service.CodeInvalid, err)
	}

	job, err := d.installer.Begin(ctx, request.Package)
	if err != nil {
		return nil, classify(err)
	}
	return schema.InstallResponse{
		Package:  job.Package,
		Version:  job.Version,
		Attempt:  job.Attempt,
		Updating: job.Updating,
	}, nil
}

func (d *Daemon) handleProgress(ctx context.Context, raw []byte) (any, error) {
	id, err := decodePackage(raw)
	if err != nil {
		return nil, err
	}
	live := slices.Contains(d.installer.Active(), id)
	snapshot, err := d.installer.Progress(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	response := schema.ProgressResponse{
		Package:  id,
		Live:     live,
		Stage:    snapshot.Stage(),
		Snapshot: snapshot,
	}
	if percent, known := snapshot.Percent(); known {
		response.Percent = &percent
	}
	return response, nil
}

func (d *Daemon) handleStatus(ctx context.Context, raw []byte) (any, error) {
	id, err := decodePackage(raw)
	if err != nil {
		return nil, err
	}
	entry, err := d.packages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, service.WithCode(service.CodeNotFound, fmt.Errorf("%s is not installed", id))
	}
	return packageStatus(id, entry), nil
}

func (d *Daemon) handleList(ctx context.Context, raw []byte) (any, error) {
	entries, err := d.packages.All(ctx)
	if err != nil {
		return nil, err
	}
	broken, err := d.packages.BrokenPackages(ctx)
	if err != nil {
		return nil, err
	}
	brokenSet := make(map[pkgid.PackageID]bool, len(broken))
	for _, record := range broken {
		brokenSet[record.ID] = true
	}

	summaries := make([]schema.PackageSummary, 0, len(entries))
	for id, entry := range entries {
		m := entry.CurrentManifest()
		summary := schema.PackageSummary{
			Package: id,
			Title:   m.Title,
			State:   entry.State(),
			Version: m.Version,
			Broken:  brokenSet[id],
		}
		if installed, ok := entry.(*pkgstate.Installed); ok {
			mainStatus := installed.Installed.Status.Main
			summary.Main = &mainStatus
		}
		summaries = append(summaries, summary)
	}
	slices.SortFunc(summaries, func(a, b schema.PackageSummary) int {
		return cmp.Compare(a.Package, b.Package)
	})
	return summaries, nil
}

func (d *Daemon) handleBroken(ctx context.Context, raw []byte) (any, error) {
	broken, err := d.packages.BrokenPackages(ctx)
	if err != nil {
		return nil, err
	}
	if broken == nil {
		broken = []pkgstate.BrokenPackage{}
	}
	return broken, nil
}

func (d *Daemon) handleCleanup(ctx context.Context, raw []byte) (any, error) {
	id, err := decodePackage(raw)
	if err != nil {
		return nil, err
	}

	// Classify the refusals Cleanup reports as plain errors.
	entry, err := d.packages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case entry == nil:
		return nil, service.WithCode(service.CodeNotFound, fmt.Errorf("%s is not installed", id))
	case entry.State() == pkgstate.StateInstalled:
		return nil, service.WithCode(service.CodeConflict, fmt.Errorf("%s is installed; nothing to clean up", id))
	case slices.Contains(d.installer.Active(), id):
		return nil, service.WithCode(service.CodeConflict, fmt.Errorf("install of %s is still running", id))
	}

	if err := d.installer.Cleanup(ctx, id); err != nil {
		return nil, err
	}
	d.logger.Info("cleanup requested over socket", "package", id)
	return nil, nil
}

func (d *Daemon) handleReconcile(ctx context.Context, raw []byte) (any, error) {
	outcomes, err := d.installer.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if outcomes == nil {
		outcomes = []install.ReconcileOutcome{}
	}
	return outcomes, nil
}

// --- Helpers ---

// classify attaches a socket error code to the pipeline errors a
// client can act on.
func classify(err error) error {
	switch {
	case pkgid.IsInvalidIdentifier(err), manifest.IsIncompatible(err):
		return service.WithCode(service.CodeInvalid, err)
	case pkgstate.IsConflict(err):
		return service.WithCode(service.CodeConflict, err)
	case registry.IsNotFound(err), errors.Is(err, install.ErrNotInFlight):
		return service.WithCode(service.CodeNotFound, err)
	default:
		return err
	}
}

func packageStatus(id pkgid.PackageID, entry pkgstate.Entry) schema.PackageStatus {
	status := schema.PackageStatus{
		Package:  id,
		State:    entry.State(),
		Manifest: entry.CurrentManifest(),
		Version:  entry.CurrentManifest().Version,
	}
	switch typed := entry.(type) {
	case *pkgstate.Installing:
		status.Progress = &typed.Progress
	case *pkgstate.Updating:
		status.Progress = &typed.Progress
		status.Installed = &typed.Installed
		status.StaticFiles = &typed.StaticFiles
		incoming := typed.Incoming.Version
		status.Incoming = &incoming
	case *pkgstate.Installed:
		status.Installed = &typed.Installed
		status.StaticFiles = &typed.StaticFiles
	default:
		panic(fmt.Sprintf("appmgrd: unknown entry type %T", entry))
	}
	return status
}
