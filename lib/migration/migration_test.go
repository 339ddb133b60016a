// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migration

import (
	"context"
	"testing"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/iofmt"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/volume"
)

type fakeExecutor struct {
	actions []container.Action
	inputs  []any
	output  string
}

func (f *fakeExecutor) Execute(_ context.Context, action container.Action, input any) (*container.Output, error) {
	f.actions = append(f.actions, action)
	f.inputs = append(f.inputs, input)
	return &container.Output{Raw: []byte(f.output), Format: action.Action.IOFormat}, nil
}

func migratingManifest(version string) *manifest.Manifest {
	return &manifest.Manifest{
		ID:      "bitcoind",
		Version: pkgid.MustParseVersion(version),
		Volumes: map[pkgid.VolumeID]manifest.Volume{"main": {Type: manifest.VolumeData}},
		Migrations: manifest.Migrations{
			From: map[string]manifest.DockerAction{
				"<0.20.0":          {Image: "main", Entrypoint: "migrate-old", IOFormat: iofmt.JSON, Mounts: map[pkgid.VolumeID]string{"main": "/root"}},
				">=0.20.0 <0.21.0": {Image: "main", Entrypoint: "migrate-recent", IOFormat: iofmt.JSON},
			},
			To: map[string]manifest.DockerAction{
				">=1.0.0": {Image: "main", Entrypoint: "downgrade-guard", IOFormat: iofmt.YAML},
			},
		},
	}
}

func TestFromSelectsMatchingRange(t *testing.T) {
	executor := &fakeExecutor{output: `{"configured": false}`}
	runner := &Runner{Executor: executor, Volumes: &volume.Manager{Root: "/data"}}

	result, err := runner.From(context.Background(), migratingManifest("0.21.1"), pkgid.MustParseVersion("0.19.0"))
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if result == nil || result.Configured {
		t.Fatalf("result = %+v, want configured=false", result)
	}
	if len(executor.actions) != 1 {
		t.Fatalf("executed %d actions, want 1", len(executor.actions))
	}
	action := executor.actions[0]
	if action.Action.Entrypoint != "migrate-old" {
		t.Errorf("ran %q, want migrate-old", action.Action.Entrypoint)
	}
	if action.Version.String() != "0.21.1" || action.Name != "migration-from" {
		t.Errorf("action = %s@%s %s", action.Package, action.Version, action.Name)
	}
	if len(action.Mounts) != 1 || action.Mounts[0].Source != "/data/bitcoind/volumes/main" {
		t.Errorf("mounts = %+v", action.Mounts)
	}
	if executor.inputs[0] != "0.19.0" {
		t.Errorf("input = %#v, want the source version", executor.inputs[0])
	}
}

func TestToRunsPreviousImage(t *testing.T) {
	executor := &fakeExecutor{output: "configured: true\n"}
	runner := &Runner{Executor: executor, Volumes: &volume.Manager{Root: "/data"}}

	result, err := runner.To(context.Background(), migratingManifest("0.21.1"), pkgid.MustParseVersion("1.2.0"))
	if err != nil {
		t.Fatalf("To: %v", err)
	}
	if result == nil || !result.Configured {
		t.Fatalf("result = %+v, want configured=true", result)
	}
	if executor.actions[0].Version.String() != "0.21.1" {
		t.Errorf("to-migration ran in %s, want the previous version's image", executor.actions[0].Version)
	}
}

func TestNoMatchingRange(t *testing.T) {
	executor := &fakeExecutor{}
	runner := &Runner{Executor: executor, Volumes: &volume.Manager{Root: "/data"}}

	result, err := runner.To(context.Background(), migratingManifest("0.21.1"), pkgid.MustParseVersion("0.22.0"))
	if err != nil {
		t.Fatalf("To: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if len(executor.actions) != 0 {
		t.Error("an action ran with no matching range")
	}
}

func TestSelectRejectsBadRange(t *testing.T) {
	_, _, _, err := Select(map[string]manifest.DockerAction{"not a range!": {}}, pkgid.MustParseVersion("1.0.0"))
	if err == nil {
		t.Error("Select accepted an unparseable range")
	}
}
