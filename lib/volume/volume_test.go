// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/appmgr/lib/container"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

func TestPathFor(t *testing.T) {
	manager := &Manager{Root: "/data"}
	tests := []struct {
		name   string
		id     pkgid.VolumeID
		volume manifest.Volume
		want   string
	}{
		{"data", "main", manifest.Volume{Type: manifest.VolumeData}, "/data/lnd/volumes/main"},
		{"pointer", "btc", manifest.Volume{Type: manifest.VolumePointer, PackageID: "bitcoind", VolumeID: "main", Path: "rpc/cookie"}, "/data/bitcoind/volumes/main/rpc/cookie"},
		{"pointer without path", "btc", manifest.Volume{Type: manifest.VolumePointer, PackageID: "bitcoind", VolumeID: "main"}, "/data/bitcoind/volumes/main"},
		{"certificate self", "cert", manifest.Volume{Type: manifest.VolumeCertificate, InterfaceID: "rpc"}, "/data/lnd/certificates/rpc"},
		{"certificate other", "cert", manifest.Volume{Type: manifest.VolumeCertificate, PackageID: "bitcoind", InterfaceID: "rpc"}, "/data/bitcoind/certificates/rpc"},
		{"hidden service", "tor", manifest.Volume{Type: manifest.VolumeHiddenService, InterfaceID: "peer"}, "/data/lnd/hidden-services/peer"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := manager.PathFor("lnd", test.id, test.volume); got != test.want {
				t.Errorf("PathFor = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInstallCreatesOwnedDirectories(t *testing.T) {
	root := t.TempDir()
	manager := &Manager{Root: root}
	volumes := map[pkgid.VolumeID]manifest.Volume{
		"main":    {Type: manifest.VolumeData},
		"cert":    {Type: manifest.VolumeCertificate, InterfaceID: "rpc"},
		"foreign": {Type: manifest.VolumeCertificate, PackageID: "bitcoind", InterfaceID: "rpc"},
		"btc":     {Type: manifest.VolumePointer, PackageID: "bitcoind", VolumeID: "main"},
	}

	if err := manager.Install("lnd", pkgid.MustParseVersion("0.14.0"), volumes); err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, want := range []string{"lnd/volumes/main", "lnd/certificates/rpc"} {
		if info, err := os.Stat(filepath.Join(root, want)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", want, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "bitcoind")); !os.IsNotExist(err) {
		t.Errorf("directories created for another package: %v", err)
	}

	if err := manager.Remove("lnd"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "lnd")); !os.IsNotExist(err) {
		t.Errorf("package directory survives Remove: %v", err)
	}
}

func TestMountsFor(t *testing.T) {
	manager := &Manager{Root: "/data"}
	volumes := map[pkgid.VolumeID]manifest.Volume{
		"main": {Type: manifest.VolumeData},
		"btc":  {Type: manifest.VolumePointer, PackageID: "bitcoind", VolumeID: "main", ReadOnly: true},
	}

	mounts, err := manager.MountsFor("lnd", volumes, map[pkgid.VolumeID]string{
		"main": "/root/.lnd",
		"btc":  "/mnt/bitcoin",
	})
	if err != nil {
		t.Fatalf("MountsFor: %v", err)
	}
	want := []container.Mount{
		{Source: "/data/bitcoind/volumes/main", Target: "/mnt/bitcoin", ReadOnly: true},
		{Source: "/data/lnd/volumes/main", Target: "/root/.lnd"},
	}
	if len(mounts) != len(want) {
		t.Fatalf("mounts = %v, want %v", mounts, want)
	}
	for index := range want {
		if mounts[index] != want[index] {
			t.Errorf("mounts[%d] = %+v, want %+v", index, mounts[index], want[index])
		}
	}

	if _, err := manager.MountsFor("lnd", volumes, map[pkgid.VolumeID]string{"missing": "/x"}); err == nil {
		t.Error("MountsFor accepted an undeclared volume")
	}
}
