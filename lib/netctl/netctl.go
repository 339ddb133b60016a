// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netctl

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/secret"
)

// KeyStore holds interface keys. *secretstore.Tx implements it.
type KeyStore interface {
	TorKey(id pkgid.PackageID, iface pkgid.InterfaceID) (*secret.Buffer, error)
	TorKeys(id pkgid.PackageID) (map[pkgid.InterfaceID]*secret.Buffer, error)
	PutTorKey(id pkgid.PackageID, iface pkgid.InterfaceID, key []byte) error
}

// Controller installs package interfaces.
type Controller struct {
	Logger *slog.Logger
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Install ensures every networked interface of pkg (one with a tor or
// LAN configuration) has a key in keys and returns the resulting
// addresses.
func (c *Controller) Install(keys KeyStore, pkg pkgid.PackageID, interfaces map[pkgid.InterfaceID]manifest.Interface) (map[pkgid.InterfaceID]pkgstate.InterfaceAddresses, error) {
	ids := make([]pkgid.InterfaceID, 0, len(interfaces))
	for id := range interfaces {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	addresses := make(map[pkgid.InterfaceID]pkgstate.InterfaceAddresses, len(interfaces))
	for _, id := range ids {
		iface := interfaces[id]
		if iface.TorConfig == nil && len(iface.LanConfig) == 0 {
			continue
		}
		seed, err := c.ensureKey(keys, pkg, id)
		if err != nil {
			return nil, err
		}
		label := OnionLabel(ed25519.NewKeyFromSeed(seed.Bytes()).Public().(ed25519.PublicKey))
		seed.Close()

		var entry pkgstate.InterfaceAddresses
		if iface.TorConfig != nil {
			entry.TorAddress = label + ".onion"
		}
		if len(iface.LanConfig) > 0 {
			entry.LanAddress = label + ".local"
		}
		addresses[id] = entry
	}
	return addresses, nil
}

func (c *Controller) ensureKey(keys KeyStore, pkg pkgid.PackageID, iface pkgid.InterfaceID) (*secret.Buffer, error) {
	existing, err := keys.TorKey(pkg, iface)
	if err != nil {
		return nil, fmt.Errorf("reading key of %s/%s: %w", pkg, iface, err)
	}
	if existing != nil {
		if existing.Len() != ed25519.SeedSize {
			existing.Close()
			return nil, fmt.Errorf("key of %s/%s is %d bytes, want %d", pkg, iface, existing.Len(), ed25519.SeedSize)
		}
		return existing, nil
	}

	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	if _, err := rand.Read(seed.Bytes()); err != nil {
		seed.Close()
		return nil, fmt.Errorf("generating key for %s/%s: %w", pkg, iface, err)
	}
	if err := keys.PutTorKey(pkg, iface, seed.Bytes()); err != nil {
		seed.Close()
		return nil, fmt.Errorf("storing key of %s/%s: %w", pkg, iface, err)
	}
	c.logger().Info("interface key generated", "package", pkg, "interface", iface)
	return seed, nil
}

// TorKeys returns the expanded ed25519 private keys of every interface
// of pkg. The caller owns the returned buffers.
func (c *Controller) TorKeys(keys KeyStore, pkg pkgid.PackageID) (map[pkgid.InterfaceID]*secret.Buffer, error) {
	seeds, err := keys.TorKeys(pkg)
	if err != nil {
		return nil, fmt.Errorf("reading keys of %s: %w", pkg, err)
	}
	result := make(map[pkgid.InterfaceID]*secret.Buffer, len(seeds))
	for iface, seed := range seeds {
		private := ed25519.NewKeyFromSeed(seed.Bytes())
		seed.Close()
		buffer, err := secret.NewFromBytes(private)
		if err != nil {
			for _, opened := range result {
				opened.Close()
			}
			return nil, err
		}
		result[iface] = buffer
	}
	return result, nil
}

const onionVersion = 0x03

// OnionLabel is the v3 onion service label (without ".onion") of a
// public key.
func OnionLabel(public ed25519.PublicKey) string {
	hash := sha3.New256()
	hash.Write([]byte(".onion checksum"))
	hash.Write(public)
	hash.Write([]byte{onionVersion})
	checksum := hash.Sum(nil)

	raw := make([]byte, 0, ed25519.PublicKeySize+3)
	raw = append(raw, public...)
	raw = append(raw, checksum[:2]...)
	raw = append(raw, onionVersion)
	return strings.ToLower(base32.StdEncoding.EncodeToString(raw))
}
