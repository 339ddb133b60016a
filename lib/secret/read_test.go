// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"plain", "AGE-SECRET-KEY-1ABC", "AGE-SECRET-KEY-1ABC"},
		{"trailing newline", "AGE-SECRET-KEY-1ABC\n", "AGE-SECRET-KEY-1ABC"},
		{"surrounding whitespace", "  AGE-SECRET-KEY-1ABC \n", "AGE-SECRET-KEY-1ABC"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(tempDir, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatalf("writing test file: %v", err)
			}

			result, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error: %v", err)
			}
			defer result.Close()
			if result.String() != test.expected {
				t.Errorf("ReadFile() = %q, want %q", result.String(), test.expected)
			}
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "absent")); !os.IsNotExist(err) {
		t.Fatalf("ReadFile(missing) error = %v, want not-exist", err)
	}
}

func TestReadFileWhitespaceOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank")
	if err := os.WriteFile(path, []byte(" \n\t\n"), 0o600); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for whitespace-only file")
	}
}
