// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for appmgrd and
// the appmgr CLI.
//
// Configuration is loaded from a single file specified by either the
// APPMGR_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Clients that only need default locations (the CLI looking
// for the daemon socket) use [Expanded].
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${APPMGR_ROOT}, and ${VAR:-default} patterns are expanded.
// The default cache, public, app-data and state directories live under
// ${APPMGR_ROOT}, so overriding paths.root moves all of them.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Registry, Install,
//     Container, Secrets and Metrics
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other appmgr packages.
package config
