// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package iofmt encodes and decodes structured values in the formats a
// package may choose for its action I/O: JSON, YAML, CBOR and TOML.
//
// A package's manifest names one format per action (io-format). The
// container runtime encodes action input in that format on the
// container's stdin and decodes its stdout the same way. The same
// functions load manifests and config specs from disk for appmgr pack.
//
// Go types in appmgr carry `json` struct tags only. CBOR honours them
// natively (see lib/codec). YAML and TOML values are decoded into a
// generic tree, normalized to string-keyed maps, and then bound to the
// target through encoding/json, so every format resolves field names
// the same way.
package iofmt
