// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and transport error utilities.
//
// Response helpers (ReadResponse, ErrorBody) bound body
// reads at MaxResponseSize. They are for registry metadata responses
// (manifests, error bodies), not for archive downloads, which are
// streamed to disk with io.Copy.
//
// Classify narrows transport failures to the three kinds callers act
// on: the connection could not be established, an operation timed out,
// or anything else.
package netutil

import "io"

// MaxResponseSize is the bound on metadata response reads: 16 MiB,
// the largest manifest an archive may carry.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody reads an error response body for a diagnostic message.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
