// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides appmgr's standard CBOR encoding configuration.
//
// appmgr uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the package registry HTTP API,
//     CLI --json output, and manifests authored by package developers.
//   - CBOR for everything appmgr writes for itself: the manifest and
//     config-spec sections of an s9pk archive, package registry slot
//     documents, and the appmgrd socket protocol.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps archive content hashes stable across rebuilds.
//
// For buffer-oriented operations (archive sections, slot documents):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, archive sections read in
// place):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is only ever serialized as CBOR (slot
//     documents, socket envelopes).
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags when `cbor` tags are absent,
//     so one tag controls field naming and omitempty for both formats.
//     Manifests are the main example: developers write them as JSON or
//     YAML, archives carry them as CBOR.
//
// Never use both `cbor` and `json` tags on the same field.
package codec
