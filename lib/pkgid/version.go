// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pkgid

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a semantic version. The zero value is not a valid version
// (IsZero reports true) and sorts before every real version.
type Version struct {
	semver *semver.Version
}

// ParseVersion parses a semantic version such as "0.3.2" or
// "1.0.0-beta.1". A leading "v" is accepted.
func ParseVersion(raw string) (Version, error) {
	if raw == "" {
		return Version{}, &InvalidIdentifierError{Kind: "version", Value: raw, Reason: "empty"}
	}
	parsed, err := semver.NewVersion(raw)
	if err != nil {
		return Version{}, &InvalidIdentifierError{Kind: "version", Value: raw, Reason: err.Error()}
	}
	return Version{semver: parsed}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(raw string) Version {
	version, err := ParseVersion(raw)
	if err != nil {
		panic(fmt.Sprintf("pkgid.MustParseVersion(%q): %v", raw, err))
	}
	return version
}

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool { return v.semver == nil }

// String returns the canonical form ("1.2.3", without any leading "v").
// The zero version renders as the empty string.
func (v Version) String() string {
	if v.semver == nil {
		return ""
	}
	return v.semver.String()
}

// Compare returns -1, 0 or +1 comparing v to other. The zero version is
// less than any set version.
func (v Version) Compare(other Version) int {
	switch {
	case v.semver == nil && other.semver == nil:
		return 0
	case v.semver == nil:
		return -1
	case other.semver == nil:
		return 1
	}
	return v.semver.Compare(other.semver)
}

// Equal reports whether v and other denote the same version.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// Satisfies reports whether v lies within the range. The zero version
// satisfies nothing.
func (v Version) Satisfies(r VersionRange) bool {
	if v.semver == nil {
		return false
	}
	return r.contains(v.semver)
}

// MarshalText implements encoding.TextMarshaler. The zero version
// marshals as the empty string.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. The empty string
// decodes to the zero version so optional version fields round-trip.
func (v *Version) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := ParseVersion(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// VersionRange is a version constraint expression such as ">=1.0.0 <2.0.0"
// or "^0.3". The expression "*" (and the zero value) matches every
// version, including pre-releases.
type VersionRange struct {
	raw         string
	constraints *semver.Constraints
}

// AnyVersion is the range that matches every version.
var AnyVersion = VersionRange{raw: "*"}

// ParseVersionRange parses a constraint expression. The empty string and
// "*" both produce AnyVersion.
func ParseVersionRange(raw string) (VersionRange, error) {
	if raw == "" || raw == "*" {
		return AnyVersion, nil
	}
	constraints, err := semver.NewConstraint(raw)
	if err != nil {
		return VersionRange{}, &InvalidIdentifierError{Kind: "version range", Value: raw, Reason: err.Error()}
	}
	return VersionRange{raw: raw, constraints: constraints}, nil
}

// MustParseVersionRange is like ParseVersionRange but panics on error.
func MustParseVersionRange(raw string) VersionRange {
	r, err := ParseVersionRange(raw)
	if err != nil {
		panic(fmt.Sprintf("pkgid.MustParseVersionRange(%q): %v", raw, err))
	}
	return r
}

// IsAny reports whether the range matches every version.
func (r VersionRange) IsAny() bool { return r.constraints == nil }

// String returns the expression the range was parsed from, or "*".
func (r VersionRange) String() string {
	if r.constraints == nil {
		return "*"
	}
	return r.raw
}

func (r VersionRange) contains(version *semver.Version) bool {
	if r.constraints == nil {
		return true
	}
	return r.constraints.Check(version)
}

// MarshalText implements encoding.TextMarshaler.
func (r VersionRange) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *VersionRange) UnmarshalText(data []byte) error {
	parsed, err := ParseVersionRange(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
