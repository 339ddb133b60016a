// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"filippo.io/age"

	"github.com/bureau-foundation/appmgr/lib/secret"
)

// Keypair holds an age x25519 keypair. The caller must call Close.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... string in protected
	// memory. Never log it.
	PrivateKey *secret.Buffer

	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	// identity.String() leaves a heap copy behind; age offers no other
	// accessor. The buffer is the copy we keep.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// LoadIdentityFile reads an age identity from path and derives its
// public key.
func LoadIdentityFile(path string) (*Keypair, error) {
	privateKey, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		privateKey.Close()
		return nil, fmt.Errorf("parsing age identity %s: %w", path, err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// EnsureIdentityFile loads the identity at path, generating it (mode
// 0600, exclusive create) when the file does not exist. created reports
// whether a new identity was written.
func EnsureIdentityFile(path string) (keypair *Keypair, created bool, err error) {
	keypair, err = LoadIdentityFile(path)
	if err == nil {
		return keypair, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	keypair, err = GenerateKeypair()
	if err != nil {
		return nil, false, err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		keypair.Close()
		return nil, false, fmt.Errorf("creating age identity file: %w", err)
	}
	_, writeErr := file.Write(keypair.PrivateKey.Bytes())
	if writeErr == nil {
		_, writeErr = file.Write([]byte("\n"))
	}
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		keypair.Close()
		os.Remove(path)
		return nil, false, fmt.Errorf("writing age identity file: %w", err)
	}
	return keypair, true, nil
}

// Encrypt encrypts plaintext to one or more age recipients and returns
// base64 ciphertext.
func Encrypt(plaintext []byte, recipientKeys ...string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Decrypt decrypts base64 ciphertext with privateKey, which is borrowed
// and not closed. The caller must Close the returned buffer.
func Decrypt(ciphertext string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("decrypted plaintext is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}
