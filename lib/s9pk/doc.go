// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package s9pk reads and writes package archives.
//
// An archive is a single seekable file: a fixed 104-byte header followed
// by six sections in a fixed order (manifest, configuration schema,
// icon, container image payload, license, instructions). The header
// carries an 8-byte magic and a table of contents with the absolute
// position and length of every section:
//
//	offset  size  field
//	0       4     "S9PK"
//	4       1     format version (2)
//	5       3     reserved, zero
//	8       16    manifest      {position u64 LE, length u64 LE}
//	24      16    config spec
//	40      16    icon
//	56      16    app image
//	72      16    license
//	88      16    instructions  ({0, 0} when absent)
//
// The manifest and configuration schema are CBOR (see lib/codec). The
// app image is an image tarball the container runtime loads as is.
//
// [Pack] writes an archive in two passes: a zeroed placeholder header,
// the sections, then the real header once every position is known.
//
// Reading is a two-step process. [Open] reads the header bytes and
// hashes the whole stream; the hash is all the content cache needs.
// [Reader.Validate] then checks the table of contents and decodes the
// manifest. Only the resulting [ValidatedReader] hands out section
// readers, so nothing can stream a section out of an archive whose
// layout has not been checked.
package s9pk
