// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the appmgrd socket protocol: the action names
// and the request and response structures exchanged over the daemon's
// Unix socket. appmgrd (the writer of responses) and the appmgr CLI
// (their reader) both use these types, so they agree on CBOR keys.
//
// Every request is a CBOR map with an "action" key naming one of the
// Action* constants. Actions that operate on one package carry it in
// [PackageRequest]. Responses are wrapped by lib/service in its
// envelope; the types here are the envelope's data payloads.
//
// Package state documents ([pkgstate.InstalledPackageDataEntry],
// [progress.Snapshot], [manifest.Manifest]) are embedded as-is rather
// than mirrored. Fields carry json tags, which lib/codec honors for
// CBOR, so the CLI's --json output uses the same keys as the wire.
package schema
