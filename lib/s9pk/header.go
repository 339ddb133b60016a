// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"encoding/binary"
	"fmt"
)

const (
	// FormatVersion is the only archive version this package reads
	// or writes.
	FormatVersion = 2

	// HeaderSize is the fixed header length: 8-byte magic plus six
	// 16-byte table of contents entries.
	HeaderSize = 8 + sectionCount*tocEntrySize

	tocEntrySize = 16
	sectionCount = 6
)

var magic = [8]byte{'S', '9', 'P', 'K', FormatVersion, 0, 0, 0}

// Section names one archive section. The numeric value is the
// section's index in the table of contents.
type Section int

const (
	SectionManifest Section = iota
	SectionConfigSpec
	SectionIcon
	SectionAppImage
	SectionLicense
	SectionInstructions
)

var sectionNames = [sectionCount]string{
	"manifest",
	"config_spec",
	"icon",
	"app_image",
	"license",
	"instructions",
}

func (s Section) String() string {
	if s < 0 || int(s) >= sectionCount {
		return fmt.Sprintf("section(%d)", int(s))
	}
	return sectionNames[s]
}

// Span locates a section: an absolute byte position in the stream and
// a length. The zero Span marks an absent section.
type Span struct {
	Position uint64
	Length   uint64
}

// End returns the position one past the last byte of the span.
func (s Span) End() uint64 { return s.Position + s.Length }

func (s Span) overlaps(other Span) bool {
	if s.Length == 0 || other.Length == 0 {
		return false
	}
	return s.Position < other.End() && other.Position < s.End()
}

// Header is the decoded table of contents.
type Header struct {
	TOC [sectionCount]Span
}

// Span returns the table of contents entry for section.
func (h *Header) Span(section Section) Span { return h.TOC[section] }

func (h *Header) encode() [HeaderSize]byte {
	var buffer [HeaderSize]byte
	copy(buffer[:8], magic[:])
	for index, span := range h.TOC {
		offset := 8 + index*tocEntrySize
		binary.LittleEndian.PutUint64(buffer[offset:], span.Position)
		binary.LittleEndian.PutUint64(buffer[offset+8:], span.Length)
	}
	return buffer
}

func parseHeader(buffer [HeaderSize]byte) (Header, error) {
	if buffer[0] != 'S' || buffer[1] != '9' || buffer[2] != 'P' || buffer[3] != 'K' {
		return Header{}, &CorruptArchiveError{Section: "header", Reason: "invalid magic bytes"}
	}
	if buffer[4] != FormatVersion {
		return Header{}, &CorruptArchiveError{
			Section: "header",
			Reason:  fmt.Sprintf("format version %d is not supported (this code supports version %d)", buffer[4], FormatVersion),
		}
	}
	if buffer[5] != 0 || buffer[6] != 0 || buffer[7] != 0 {
		return Header{}, &CorruptArchiveError{
			Section: "header",
			Reason:  fmt.Sprintf("non-zero reserved bytes: %x", buffer[5:8]),
		}
	}

	var header Header
	for index := range header.TOC {
		offset := 8 + index*tocEntrySize
		header.TOC[index] = Span{
			Position: binary.LittleEndian.Uint64(buffer[offset:]),
			Length:   binary.LittleEndian.Uint64(buffer[offset+8:]),
		}
	}
	return header, nil
}
