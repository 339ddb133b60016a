// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}

	other := generate(t)
	if other.PublicKey == keypair.PublicKey {
		t.Error("two generated keypairs share a public key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	keypair := generate(t)

	plaintext := []byte("0123456789abcdef0123456789abcdef")
	ciphertext, err := Encrypt(plaintext, keypair.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(ciphertext, string(plaintext)) {
		t.Fatal("ciphertext contains the plaintext")
	}

	decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer decrypted.Close()
	if decrypted.String() != string(plaintext) {
		t.Errorf("Decrypt = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestEncryptMultipleRecipients(t *testing.T) {
	first := generate(t)
	second := generate(t)

	ciphertext, err := Encrypt([]byte("seed"), first.PublicKey, second.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	for _, keypair := range []*Keypair{first, second} {
		decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt with %s: %v", keypair.PublicKey, err)
		}
		if decrypted.String() != "seed" {
			t.Errorf("Decrypt = %q, want seed", decrypted.String())
		}
		decrypted.Close()
	}
}

func TestDecryptWrongKey(t *testing.T) {
	owner := generate(t)
	stranger := generate(t)

	ciphertext, err := Encrypt([]byte("seed"), owner.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ciphertext, stranger.PrivateKey); err == nil {
		t.Fatal("Decrypt succeeded with the wrong identity")
	}
}

func TestEncryptErrors(t *testing.T) {
	if _, err := Encrypt([]byte("x")); err == nil {
		t.Error("Encrypt with no recipients succeeded")
	}
	if _, err := Encrypt([]byte("x"), "age1notakey"); err == nil {
		t.Error("Encrypt with a malformed recipient succeeded")
	}
}

func TestDecryptInvalidCiphertext(t *testing.T) {
	keypair := generate(t)
	for _, ciphertext := range []string{"not base64!!", "aGVsbG8="} {
		if _, err := Decrypt(ciphertext, keypair.PrivateKey); err == nil {
			t.Errorf("Decrypt(%q) succeeded", ciphertext)
		}
	}
}

func TestEnsureIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.age")

	created, wasCreated, err := EnsureIdentityFile(path)
	if err != nil {
		t.Fatalf("EnsureIdentityFile (create): %v", err)
	}
	defer created.Close()
	if !wasCreated {
		t.Error("first call should report created")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity file mode = %o, want 600", mode)
	}

	loaded, wasCreated, err := EnsureIdentityFile(path)
	if err != nil {
		t.Fatalf("EnsureIdentityFile (load): %v", err)
	}
	defer loaded.Close()
	if wasCreated {
		t.Error("second call should load the existing identity")
	}
	if loaded.PublicKey != created.PublicKey {
		t.Errorf("loaded public key %s, want %s", loaded.PublicKey, created.PublicKey)
	}

	// Something sealed to the generated identity opens with the loaded one.
	ciphertext, err := Encrypt([]byte("seed"), created.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := Decrypt(ciphertext, loaded.PrivateKey)
	if err != nil {
		t.Fatalf("Decrypt with loaded identity: %v", err)
	}
	decrypted.Close()
}

func TestLoadIdentityFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.age")
	if err := os.WriteFile(path, []byte("not an identity\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIdentityFile(path); err == nil {
		t.Fatal("LoadIdentityFile accepted garbage")
	}
	if _, _, err := EnsureIdentityFile(path); err == nil {
		t.Fatal("EnsureIdentityFile overwrote or accepted a corrupt identity")
	}
}
