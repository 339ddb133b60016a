// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteJSONNormalizesNilSlice(t *testing.T) {
	var buffer bytes.Buffer
	var entries []string
	if err := WriteJSON(&buffer, entries); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buffer.String()); got != "[]" {
		t.Errorf("WriteJSON(nil slice) = %q, want []", got)
	}
}

func TestEmitJSONDisabled(t *testing.T) {
	var output JSONOutput
	done, err := output.EmitJSON(map[string]int{"a": 1})
	if done || err != nil {
		t.Errorf("EmitJSON without --json = (%v, %v), want (false, nil)", done, err)
	}
}
