// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgid defines the validated identifier types shared by every
// appmgr package: package, volume, interface and image identifiers, plus
// semantic versions and version ranges.
//
// Identifiers are validated once, at construction (Parse* or
// UnmarshalText). Code that holds a PackageID, VolumeID, InterfaceID or
// ImageID may assume it is well formed. All types implement
// encoding.TextMarshaler and encoding.TextUnmarshaler, so they encode as
// plain strings in CBOR (see lib/codec), JSON and YAML.
//
// The identifier alphabet is deliberately narrow: lowercase ASCII letters
// and hyphens. Identifiers become path segments (cache directories,
// volume paths) and container image names, so anything wider would need
// escaping at every one of those boundaries.
package pkgid
