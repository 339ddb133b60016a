// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netctl assigns network identities to package interfaces.
//
// Every interface with a tor or LAN configuration gets an ed25519 key,
// generated on first install and reused by later versions. The key's v3
// onion label names the interface: "<label>.onion" when it has a tor
// configuration and "<label>.local" when it has a LAN configuration. Keys are written through a [KeyStore], normally an
// open lib/secretstore transaction, so they commit or roll back with
// the rest of the install.
package netctl
