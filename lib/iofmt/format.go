// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package iofmt

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format names an action I/O encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CBOR Format = "cbor"
	TOML Format = "toml"
)

// ParseFormat accepts the lowercase format names used in manifests.
func ParseFormat(raw string) (Format, error) {
	switch format := Format(strings.ToLower(raw)); format {
	case JSON, YAML, CBOR, TOML:
		return format, nil
	default:
		return "", fmt.Errorf("unknown io format %q (want json, yaml, cbor or toml)", raw)
	}
}

// FormatForPath picks a format from a file extension. ".jsonc" maps to
// JSON; DecodeFile strips its comments before decoding.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".cbor":
		return CBOR, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("cannot infer format of %s from its extension", path)
	}
}

// String returns the display name used in logs ("JSON", "YAML", ...).
func (f Format) String() string { return strings.ToUpper(string(f)) }

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) { return []byte(f), nil }

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to the zero Format (raw text).
func (f *Format) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*f = ""
		return nil
	}
	parsed, err := ParseFormat(string(data))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
