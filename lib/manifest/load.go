// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/appmgr/lib/iofmt"
)

// LoadFile reads and validates a manifest from a .yaml, .yml, .json,
// .jsonc or .cbor file.
func LoadFile(path string) (*Manifest, error) {
	var manifest Manifest
	if err := iofmt.DecodeFile(path, &manifest); err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &manifest, nil
}

// ParseJSON decodes and validates a JSON manifest, the form the package
// registry serves.
func ParseJSON(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}
