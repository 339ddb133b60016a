// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the client of the package registry HTTP API.
//
// Resolve fetches a package's manifest and opens its archive download
// concurrently:
//
//	GET {base}/package/manifest/{id}?version={range}   manifest JSON
//	GET {base}/package/{id}.s9pk?version={range}       archive bytes
//
// The archive response may carry Content-Length and X-S9pk-Hash (the
// archive's BLAKE3 content hash, lowercase hex). The archive body is
// returned unread so the caller can skip it when a cached copy with
// the same hash exists.
//
// Transport failures are *NetworkError values classified as connect,
// timeout or other; non-2xx replies are *StatusError values.
package registry
