// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the transport scaffolding of appmgrd: a
// CBOR request-response server on a Unix socket, the matching client
// used by the appmgr CLI, an HTTP server for the metrics endpoint,
// and the daemon logger.
//
// Each socket connection carries exactly one request and one
// response. A request is a CBOR map whose "action" field selects the
// handler; the response is a [Response] envelope. Handlers attach a
// machine-readable code to failures with [WithCode], which clients
// test with [HasCode].
//
// # Authentication
//
// The socket protocol does not authenticate callers. The socket file
// is created mode 0600, so only the daemon's user (and root) can
// reach it.
package service
