// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

func TestSocketDirIsShort(t *testing.T) {
	directory := SocketDir(t)
	if len(directory) > 40 {
		t.Errorf("SocketDir() = %q, too long for socket paths", directory)
	}
	if info, err := os.Stat(directory); err != nil || !info.IsDir() {
		t.Fatalf("SocketDir() did not create a directory: %v", err)
	}
}
