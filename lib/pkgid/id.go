// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgid

import (
	"errors"
	"fmt"
)

// InvalidIdentifierError reports a malformed identifier. Kind names the
// identifier type ("package", "volume", "interface", "image",
// "version", "version range").
type InvalidIdentifierError struct {
	Kind   string
	Value  string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s id %q: %s", e.Kind, e.Value, e.Reason)
}

// IsInvalidIdentifier reports whether err is (or wraps) an
// *InvalidIdentifierError.
func IsInvalidIdentifier(err error) bool {
	var target *InvalidIdentifierError
	return errors.As(err, &target)
}

// maxIDLength bounds identifiers that end up as path segments.
const maxIDLength = 64

func validateID(kind, raw string) error {
	if raw == "" {
		return &InvalidIdentifierError{Kind: kind, Value: raw, Reason: "empty"}
	}
	if len(raw) > maxIDLength {
		return &InvalidIdentifierError{
			Kind:   kind,
			Value:  raw,
			Reason: fmt.Sprintf("longer than %d characters", maxIDLength),
		}
	}
	for index := 0; index < len(raw); index++ {
		c := raw[index]
		if (c < 'a' || c > 'z') && c != '-' {
			return &InvalidIdentifierError{
				Kind:   kind,
				Value:  raw,
				Reason: fmt.Sprintf("character %q at offset %d is not a lowercase letter or hyphen", c, index),
			}
		}
	}
	return nil
}

// PackageID identifies a package (e.g. "bitcoind", "lnd-neutrino").
type PackageID string

// ParsePackageID validates raw as a package identifier.
func ParsePackageID(raw string) (PackageID, error) {
	if err := validateID("package", raw); err != nil {
		return "", err
	}
	return PackageID(raw), nil
}

// MustParsePackageID is like ParsePackageID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParsePackageID(raw string) PackageID {
	id, err := ParsePackageID(raw)
	if err != nil {
		panic(fmt.Sprintf("pkgid.MustParsePackageID(%q): %v", raw, err))
	}
	return id
}

func (id PackageID) String() string { return string(id) }

// MarshalText implements encoding.TextMarshaler.
func (id PackageID) MarshalText() ([]byte, error) { return []byte(id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Validates the input.
func (id *PackageID) UnmarshalText(data []byte) error {
	parsed, err := ParsePackageID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// VolumeID identifies a volume declared by a package manifest.
type VolumeID string

// ParseVolumeID validates raw as a volume identifier.
func ParseVolumeID(raw string) (VolumeID, error) {
	if err := validateID("volume", raw); err != nil {
		return "", err
	}
	return VolumeID(raw), nil
}

func (id VolumeID) String() string { return string(id) }

// MarshalText implements encoding.TextMarshaler.
func (id VolumeID) MarshalText() ([]byte, error) { return []byte(id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Validates the input.
func (id *VolumeID) UnmarshalText(data []byte) error {
	parsed, err := ParseVolumeID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// InterfaceID identifies a network interface declared by a package
// manifest.
type InterfaceID string

// ParseInterfaceID validates raw as an interface identifier.
func ParseInterfaceID(raw string) (InterfaceID, error) {
	if err := validateID("interface", raw); err != nil {
		return "", err
	}
	return InterfaceID(raw), nil
}

func (id InterfaceID) String() string { return string(id) }

// MarshalText implements encoding.TextMarshaler.
func (id InterfaceID) MarshalText() ([]byte, error) { return []byte(id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Validates the input.
func (id *InterfaceID) UnmarshalText(data []byte) error {
	parsed, err := ParseInterfaceID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ImageID identifies a container image shipped inside a package's
// image payload. The full image reference depends on the owning package
// and version; see ForPackage.
type ImageID string

// ParseImageID validates raw as an image identifier.
func ParseImageID(raw string) (ImageID, error) {
	if err := validateID("image", raw); err != nil {
		return "", err
	}
	return ImageID(raw), nil
}

func (id ImageID) String() string { return string(id) }

// ForPackage returns the image reference the package's image payload is
// expected to tag: "start9/<package>/<image>:<version>".
func (id ImageID) ForPackage(pkg PackageID, version Version) string {
	return fmt.Sprintf("start9/%s/%s:%s", pkg, id, version)
}

// MarshalText implements encoding.TextMarshaler.
func (id ImageID) MarshalText() ([]byte, error) { return []byte(id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Validates the input.
func (id *ImageID) UnmarshalText(data []byte) error {
	parsed, err := ParseImageID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
