// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the package manifest: the metadata a package
// author ships inside every s9pk archive and that the host keeps, verbatim,
// in the package registry once the package is installed.
//
// A manifest names the package and its version, the container action
// that runs the package (Main), the volumes and network interfaces it
// needs, optional configuration, backup and migration actions, and its
// dependencies on other packages.
//
// Manifests are authored as YAML, JSON or JSONC ([LoadFile]), travel
// from the registry as JSON ([ParseJSON]) and are embedded in archives as
// CBOR. All three use the same kebab-case field names. [Manifest.Validate]
// runs after every decode.
package manifest
