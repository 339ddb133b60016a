// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the appmgr
// binaries.
//
// Four variables are injected at build time via -ldflags -X:
//
//   - [GitCommit]: short git SHA of the build
//   - [GitDirty]: "true" if there were uncommitted changes
//   - [BuildTime]: UTC timestamp of the build
//   - [Version]: semantic version of the host software
//
// [Version] doubles as the host OS version that package manifests are
// checked against (min-os-version); [Host] parses it.
package version
