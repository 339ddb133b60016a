// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small secrets at rest with age.
//
// appmgr seals every package interface's onion-service key to the
// host's age x25519 identity before writing it to the secret store.
// The identity lives in a 0600 file generated on first start
// ([EnsureIdentityFile]). Ciphertext is base64 so it fits a TEXT
// column.
//
// Private keys and decrypted plaintext come back as [secret.Buffer]
// values: mmap-backed, locked against swap, zeroed on Close.
package sealed
