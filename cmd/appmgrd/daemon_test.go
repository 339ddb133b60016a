// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/install"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/schema"
	"github.com/bureau-foundation/appmgr/lib/secretstore"
	"github.com/bureau-foundation/appmgr/lib/service"
	"github.com/bureau-foundation/appmgr/lib/testutil"
)

var testClockEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeInstaller records the calls the socket actions make and answers
// from canned values.
type fakeInstaller struct {
	mu       sync.Mutex
	begun    []string
	beginErr error
	active   []pkgid.PackageID
	progress map[pkgid.PackageID]progress.Snapshot
	cleaned  []pkgid.PackageID
	outcomes []install.ReconcileOutcome
}

func (f *fakeInstaller) Begin(ctx context.Context, target string) (*install.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, target)
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	parsed, err := pkgid.ParseTarget(target)
	if err != nil {
		return nil, err
	}
	return &install.Job{
		Package: parsed.ID,
		Version: pkgid.MustParseVersion("1.2.0"),
		Attempt: "attempt-1",
	}, nil
}

func (f *fakeInstaller) Progress(ctx context.Context, id pkgid.PackageID) (progress.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.progress[id]
	if !ok {
		return progress.Snapshot{}, fmt.Errorf("%s: %w", id, install.ErrNotInFlight)
	}
	return snapshot, nil
}

func (f *fakeInstaller) Active() []pkgid.PackageID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.active)
}

func (f *fakeInstaller) Cleanup(ctx context.Context, id pkgid.PackageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, id)
	return nil
}

func (f *fakeInstaller) Reconcile(ctx context.Context) ([]install.ReconcileOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcomes, nil
}

type testEnv struct {
	client    *service.ServiceClient
	installer *fakeInstaller
	packages  *pkgstate.Store
	clock     *clock.FakeClock
}

// newTestDaemon serves a Daemon backed by a real package registry and
// a fake installer.
func newTestDaemon(t *testing.T) *testEnv {
	t.Helper()

	fakeClock := clock.Fake(testClockEpoch)
	packages, err := pkgstate.Open(pkgstate.Config{
		Path:  filepath.Join(t.TempDir(), "registry.db"),
		Clock: fakeClock,
	})
	if err != nil {
		t.Fatalf("pkgstate.Open: %v", err)
	}
	t.Cleanup(func() { packages.Close() })

	installer := &fakeInstaller{progress: make(map[pkgid.PackageID]progress.Snapshot)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	daemon := &Daemon{
		installer: installer,
		packages:  packages,
		clock:     fakeClock,
		startedAt: testClockEpoch,
		logger:    logger,
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "appmgrd.sock")
	server := service.NewSocketServer(socketPath, logger)
	daemon.registerActions(server)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, serveDone, 5*time.Second, "socket server did not stop")
	})

	client := service.NewServiceClient(socketPath)
	waitForDaemon(t, client)

	return &testEnv{
		client:    client,
		installer: installer,
		packages:  packages,
		clock:     fakeClock,
	}
}

// waitForDaemon polls the health action until the socket answers.
func waitForDaemon(t *testing.T, client *service.ServiceClient) {
	t.Helper()
	for {
		if err := client.Call(t.Context(), schema.ActionHealth, nil, nil); err == nil {
			return
		}
		if t.Context().Err() != nil {
			t.Fatal("daemon socket never answered")
		}
		time.Sleep(time.Millisecond)
	}
}

func testManifest(id pkgid.PackageID, version string) *manifest.Manifest {
	return &manifest.Manifest{
		ID:      id,
		Version: pkgid.MustParseVersion(version),
		Title:   "Test " + string(id),
		Main:    manifest.DockerAction{Image: "main"},
	}
}

func (e *testEnv) put(t *testing.T, id pkgid.PackageID, entry pkgstate.Entry) {
	t.Helper()
	err := e.packages.Update(t.Context(), func(tx *pkgstate.Tx) error {
		return tx.Put(id, entry)
	})
	if err != nil {
		t.Fatalf("Put(%s): %v", id, err)
	}
}

func installedEntry(id pkgid.PackageID, version string, main pkgstate.MainStatus) *pkgstate.Installed {
	m := testManifest(id, version)
	return &pkgstate.Installed{
		Manifest:    m,
		StaticFiles: pkgstate.NewStaticFiles(id, m.Version, "png"),
		Installed: pkgstate.InstalledPackageDataEntry{
			Manifest: m,
			Status:   pkgstate.Status{Configured: true, Main: main},
		},
	}
}

func uint64Pointer(value uint64) *uint64 { return &value }

func TestHealth(t *testing.T) {
	env := newTestDaemon(t)
	env.installer.active = []pkgid.PackageID{"zeta", "alpha"}
	env.clock.Advance(90 * time.Second)

	var health schema.HealthResponse
	if err := env.client.Call(t.Context(), schema.ActionHealth, nil, &health); err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %v, want 90", health.UptimeSeconds)
	}
	if !slices.Equal(health.Installing, []pkgid.PackageID{"alpha", "zeta"}) {
		t.Errorf("Installing = %v, want sorted [alpha zeta]", health.Installing)
	}
	if health.Version == "" {
		t.Error("Version is empty")
	}
}

func TestInstallStartsJob(t *testing.T) {
	env := newTestDaemon(t)

	var started schema.InstallResponse
	err := env.client.Call(t.Context(), schema.ActionInstall, map[string]any{"package": "bitcoind@>=1.0.0"}, &started)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if started.Package != "bitcoind" || started.Version.String() != "1.2.0" || started.Attempt != "attempt-1" {
		t.Errorf("InstallResponse = %+v", started)
	}
	if !slices.Equal(env.installer.begun, []string{"bitcoind@>=1.0.0"}) {
		t.Errorf("Begin targets = %v", env.installer.begun)
	}
}

func TestInstallErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		beginErr error
		wantCode string
	}{
		{
			name:     "bad_target",
			target:   "Not A Package",
			wantCode: service.CodeInvalid,
		},
		{
			name:     "conflict",
			target:   "bitcoind",
			beginErr: &pkgstate.ConflictError{ID: "bitcoind", State: pkgstate.StateInstalling},
			wantCode: service.CodeConflict,
		},
		{
			name:     "unknown_package",
			target:   "bitcoind",
			beginErr: fmt.Errorf("resolving bitcoind: %w", &registry.StatusError{URL: "https://registry/package/bitcoind.s9pk", StatusCode: 404}),
			wantCode: service.CodeNotFound,
		},
		{
			name:     "uncoded",
			target:   "bitcoind",
			beginErr: errors.New("registry unreachable"),
			wantCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestDaemon(t)
			env.installer.beginErr = tt.beginErr

			err := env.client.Call(t.Context(), schema.ActionInstall, map[string]any{"package": tt.target}, nil)
			var serviceErr *service.ServiceError
			if !errors.As(err, &serviceErr) {
				t.Fatalf("install error = %v, want *service.ServiceError", err)
			}
			if serviceErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (message %q)", serviceErr.Code, tt.wantCode, serviceErr.Message)
			}
		})
	}
}

func TestInstallRequiresPackage(t *testing.T) {
	env := newTestDaemon(t)
	err := env.client.Call(t.Context(), schema.ActionInstall, nil, nil)
	if !service.HasCode(err, service.CodeInvalid) {
		t.Fatalf("install without package: %v", err)
	}
	if len(env.installer.begun) != 0 {
		t.Errorf("Begin called with %v", env.installer.begun)
	}
}

func TestProgress(t *testing.T) {
	env := newTestDaemon(t)
	env.installer.active = []pkgid.PackageID{"bitcoind"}
	env.installer.progress["bitcoind"] = progress.Snapshot{
		Size:             uint64Pointer(300),
		Downloaded:       300,
		DownloadComplete: true,
		Validated:        150,
	}

	var response schema.ProgressResponse
	err := env.client.Call(t.Context(), schema.ActionProgress, map[string]any{"package": "bitcoind"}, &response)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !response.Live {
		t.Error("Live = false for an active install")
	}
	if response.Stage != "validating" {
		t.Errorf("Stage = %q, want validating", response.Stage)
	}
	if response.Percent == nil || *response.Percent != 50 {
		t.Errorf("Percent = %v, want 50", response.Percent)
	}
	if response.Snapshot.Validated != 150 {
		t.Errorf("Snapshot.Validated = %d, want 150", response.Snapshot.Validated)
	}
}

func TestProgressUnknownSize(t *testing.T) {
	env := newTestDaemon(t)
	env.installer.progress["bitcoind"] = progress.Snapshot{Downloaded: 10}

	var response schema.ProgressResponse
	err := env.client.Call(t.Context(), schema.ActionProgress, map[string]any{"package": "bitcoind"}, &response)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if response.Percent != nil {
		t.Errorf("Percent = %v, want absent", *response.Percent)
	}
	if response.Live {
		t.Error("Live = true for a package no install is running")
	}
}

func TestProgressNotInFlight(t *testing.T) {
	env := newTestDaemon(t)
	err := env.client.Call(t.Context(), schema.ActionProgress, map[string]any{"package": "bitcoind"}, nil)
	if !service.HasCode(err, service.CodeNotFound) {
		t.Fatalf("progress of an idle package: %v", err)
	}
}

func TestStatus(t *testing.T) {
	env := newTestDaemon(t)
	env.put(t, "bitcoind", installedEntry("bitcoind", "1.0.0", pkgstate.MainRunning))

	var status schema.PackageStatus
	if err := env.client.Call(t.Context(), schema.ActionStatus, map[string]any{"package": "bitcoind"}, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != pkgstate.StateInstalled || status.Version.String() != "1.0.0" {
		t.Errorf("status = %s@%s", status.State, status.Version)
	}
	if status.Installed == nil || status.Installed.Status.Main != pkgstate.MainRunning {
		t.Errorf("Installed = %+v", status.Installed)
	}
	if status.StaticFiles == nil || status.StaticFiles.Icon != "/public/package-data/bitcoind/1.0.0/icon.png" {
		t.Errorf("StaticFiles = %+v", status.StaticFiles)
	}
	if status.Progress != nil {
		t.Errorf("Progress = %+v for an installed package", status.Progress)
	}
}

func TestStatusUpdating(t *testing.T) {
	env := newTestDaemon(t)
	previous := installedEntry("bitcoind", "1.0.0", pkgstate.MainRunning)
	env.put(t, "bitcoind", &pkgstate.Updating{
		Progress:    progress.Snapshot{Downloaded: 42},
		Manifest:    previous.Manifest,
		Installed:   previous.Installed,
		StaticFiles: previous.StaticFiles,
		Incoming:    testManifest("bitcoind", "1.1.0"),
	})

	var status schema.PackageStatus
	if err := env.client.Call(t.Context(), schema.ActionStatus, map[string]any{"package": "bitcoind"}, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != pkgstate.StateUpdating {
		t.Errorf("State = %s, want updating", status.State)
	}
	if status.Version.String() != "1.0.0" {
		t.Errorf("Version = %s, want the running 1.0.0", status.Version)
	}
	if status.Incoming == nil || status.Incoming.String() != "1.1.0" {
		t.Errorf("Incoming = %v, want 1.1.0", status.Incoming)
	}
	if status.Progress == nil || status.Progress.Downloaded != 42 {
		t.Errorf("Progress = %+v", status.Progress)
	}
}

func TestStatusNotInstalled(t *testing.T) {
	env := newTestDaemon(t)
	err := env.client.Call(t.Context(), schema.ActionStatus, map[string]any{"package": "bitcoind"}, nil)
	if !service.HasCode(err, service.CodeNotFound) {
		t.Fatalf("status of an absent package: %v", err)
	}
}

func TestStatusRejectsBadID(t *testing.T) {
	env := newTestDaemon(t)
	err := env.client.Call(t.Context(), schema.ActionStatus, map[string]any{"package": "../etc"}, nil)
	if !service.HasCode(err, service.CodeInvalid) {
		t.Fatalf("status of an invalid id: %v", err)
	}
}

func TestList(t *testing.T) {
	env := newTestDaemon(t)
	env.put(t, "lnd", installedEntry("lnd", "0.17.0", pkgstate.MainStopped))
	env.put(t, "bitcoind", &pkgstate.Installing{Manifest: testManifest("bitcoind", "1.0.0")})
	if err := env.packages.RecordBroken(t.Context(), "bitcoind", errors.New("image load failed")); err != nil {
		t.Fatal(err)
	}

	var summaries []schema.PackageSummary
	if err := env.client.Call(t.Context(), schema.ActionList, nil, &summaries); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("list returned %d packages, want 2: %+v", len(summaries), summaries)
	}

	bitcoind, lnd := summaries[0], summaries[1]
	if bitcoind.Package != "bitcoind" || lnd.Package != "lnd" {
		t.Fatalf("list order = %s, %s; want sorted by id", bitcoind.Package, lnd.Package)
	}
	if bitcoind.State != pkgstate.StateInstalling || !bitcoind.Broken || bitcoind.Main != nil {
		t.Errorf("bitcoind = %+v", bitcoind)
	}
	if lnd.State != pkgstate.StateInstalled || lnd.Broken || lnd.Main == nil || *lnd.Main != pkgstate.MainStopped {
		t.Errorf("lnd = %+v", lnd)
	}
	if lnd.Title != "Test lnd" {
		t.Errorf("lnd title = %q", lnd.Title)
	}
}

func TestListEmpty(t *testing.T) {
	env := newTestDaemon(t)
	summaries := []schema.PackageSummary{{Package: "stale"}}
	if err := env.client.Call(t.Context(), schema.ActionList, nil, &summaries); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("list = %+v, want empty", summaries)
	}
}

func TestBroken(t *testing.T) {
	env := newTestDaemon(t)
	if err := env.packages.RecordBroken(t.Context(), "bitcoind", errors.New("download timed out")); err != nil {
		t.Fatal(err)
	}

	var broken []pkgstate.BrokenPackage
	if err := env.client.Call(t.Context(), schema.ActionBroken, nil, &broken); err != nil {
		t.Fatalf("broken: %v", err)
	}
	if len(broken) != 1 || broken[0].ID != "bitcoind" || broken[0].Error != "download timed out" {
		t.Fatalf("broken = %+v", broken)
	}
	if !broken[0].RecordedAt.Equal(testClockEpoch) {
		t.Errorf("RecordedAt = %v, want %v", broken[0].RecordedAt, testClockEpoch)
	}
}

func TestCleanup(t *testing.T) {
	env := newTestDaemon(t)
	env.put(t, "bitcoind", &pkgstate.Installing{Manifest: testManifest("bitcoind", "1.0.0")})

	if err := env.client.Call(t.Context(), schema.ActionCleanup, map[string]any{"package": "bitcoind"}, nil); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !slices.Equal(env.installer.cleaned, []pkgid.PackageID{"bitcoind"}) {
		t.Errorf("Cleanup calls = %v", env.installer.cleaned)
	}
}

func TestCleanupRefusals(t *testing.T) {
	tests := []struct {
		name     string
		entry    pkgstate.Entry
		active   bool
		wantCode string
	}{
		{name: "absent", wantCode: service.CodeNotFound},
		{name: "installed", entry: installedEntry("bitcoind", "1.0.0", pkgstate.MainRunning), wantCode: service.CodeConflict},
		{name: "running", entry: &pkgstate.Installing{Manifest: testManifest("bitcoind", "1.0.0")}, active: true, wantCode: service.CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestDaemon(t)
			if tt.entry != nil {
				env.put(t, "bitcoind", tt.entry)
			}
			if tt.active {
				env.installer.active = []pkgid.PackageID{"bitcoind"}
			}

			err := env.client.Call(t.Context(), schema.ActionCleanup, map[string]any{"package": "bitcoind"}, nil)
			if !service.HasCode(err, tt.wantCode) {
				t.Fatalf("cleanup error = %v, want code %q", err, tt.wantCode)
			}
			if len(env.installer.cleaned) != 0 {
				t.Errorf("Cleanup called: %v", env.installer.cleaned)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	env := newTestDaemon(t)
	env.installer.outcomes = []install.ReconcileOutcome{{
		Marker: secretstore.Marker{
			ID:        "marker-1",
			Package:   "bitcoind",
			Version:   pkgid.MustParseVersion("1.0.0"),
			Reason:    "registry commit failed",
			CreatedAt: testClockEpoch,
		},
		Action:      install.ReconcileKeysDeleted,
		KeysRemoved: 2,
	}}

	var outcomes []install.ReconcileOutcome
	if err := env.client.Call(t.Context(), schema.ActionReconcile, nil, &outcomes); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Action != install.ReconcileKeysDeleted || outcomes[0].KeysRemoved != 2 || outcomes[0].Marker.Package != "bitcoind" {
		t.Errorf("outcome = %+v", outcomes[0])
	}
}
