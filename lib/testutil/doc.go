// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for appmgr packages.
//
// [SocketDir] creates a short temporary directory for Unix domain
// sockets, whose paths are limited to 108 bytes (sun_path); t.TempDir()
// paths can exceed that.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the
// select-with-timeout pattern so tests waiting on install goroutines do
// not hang forever when something breaks. They are the only place in
// the test suite where real wall-clock timeouts appear.
//
// All helpers call t.Fatalf on failure.
package testutil
