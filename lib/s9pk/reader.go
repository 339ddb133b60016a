// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/appmgr/lib/codec"
	"github.com/bureau-foundation/appmgr/lib/manifest"
)

// requiredSections must be present in every archive.
var requiredSections = []Section{
	SectionManifest,
	SectionConfigSpec,
	SectionIcon,
	SectionAppImage,
	SectionLicense,
}

// maxManifestSize bounds how much of the manifest and config spec
// sections are read into memory during validation.
const maxManifestSize = 16 << 20

// Reader is an opened but not yet validated archive.
type Reader struct {
	stream io.ReadSeeker
	start  int64
	length int64
	raw    [HeaderSize]byte
	hash   string
}

// Open reads the archive header at the stream's current position, then
// hashes the entire stream from offset zero. The stream is read once,
// front to back, which makes Open the natural place to observe
// validation progress (wrap the stream in a progress.TrackReader).
//
// Open does not interpret the header; call [Reader.Validate].
func Open(stream io.ReadSeeker) (*Reader, error) {
	start, err := stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("finding archive start position: %w", err)
	}

	reader := &Reader{stream: stream, start: start}
	if _, err := io.ReadFull(stream, reader.raw[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &CorruptArchiveError{Section: "header", Reason: "stream is shorter than the header", Err: err}
		}
		return nil, fmt.Errorf("reading archive header: %w", err)
	}

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding archive for hashing: %w", err)
	}
	hash, length, err := HashReader(stream)
	if err != nil {
		return nil, err
	}
	reader.hash = hash
	reader.length = length
	return reader, nil
}

// Hash returns the lowercase hex BLAKE3 hash of the whole stream.
func (r *Reader) Hash() string { return r.hash }

// Length returns the stream length in bytes.
func (r *Reader) Length() int64 { return r.length }

// Validate checks the header and table of contents, decodes the
// manifest, and returns a reader that can stream sections.
//
// Structural problems are *CorruptArchiveError; a manifest or config
// spec that is not valid CBOR is *DeserializationError.
func (r *Reader) Validate() (*ValidatedReader, error) {
	header, err := parseHeader(r.raw)
	if err != nil {
		return nil, err
	}

	headerEnd := uint64(r.start) + HeaderSize
	length := uint64(r.length)
	for index, span := range header.TOC {
		section := Section(index)
		if span.Position < headerEnd {
			if span != (Span{}) {
				return nil, &CorruptArchiveError{
					Section: section.String(),
					Reason:  fmt.Sprintf("position %d lies inside the header", span.Position),
				}
			}
			continue
		}
		if span.End() < span.Position || span.End() > length {
			return nil, &CorruptArchiveError{
				Section: section.String(),
				Reason:  fmt.Sprintf("span [%d, +%d) exceeds stream length %d", span.Position, span.Length, length),
			}
		}
	}
	for _, section := range requiredSections {
		if !present(header.TOC[section], headerEnd) {
			return nil, &CorruptArchiveError{Section: section.String(), Reason: "required section is missing"}
		}
	}
	for first := 0; first < sectionCount; first++ {
		for second := first + 1; second < sectionCount; second++ {
			if header.TOC[first].overlaps(header.TOC[second]) {
				return nil, &CorruptArchiveError{
					Section: Section(first).String(),
					Reason:  fmt.Sprintf("overlaps %s", Section(second)),
				}
			}
		}
	}

	validated := &ValidatedReader{
		stream:    r.stream,
		header:    header,
		headerEnd: headerEnd,
		hash:      r.hash,
	}

	manifestBytes, err := validated.readSmall(SectionManifest)
	if err != nil {
		return nil, err
	}
	var decoded manifest.Manifest
	if err := codec.Unmarshal(manifestBytes, &decoded); err != nil {
		return nil, &DeserializationError{Section: SectionManifest, Err: err}
	}
	if err := decoded.Validate(); err != nil {
		return nil, &CorruptArchiveError{Section: SectionManifest.String(), Reason: "manifest does not validate", Err: err}
	}
	validated.manifest = &decoded

	configSpecBytes, err := validated.readSmall(SectionConfigSpec)
	if err != nil {
		return nil, err
	}
	var configSpec codec.RawMessage
	if err := codec.Unmarshal(configSpecBytes, &configSpec); err != nil {
		return nil, &DeserializationError{Section: SectionConfigSpec, Err: err}
	}

	hasInstructions := present(header.TOC[SectionInstructions], headerEnd)
	if hasInstructions != decoded.HasInstructions {
		return nil, &CorruptArchiveError{
			Section: SectionInstructions.String(),
			Reason: fmt.Sprintf("section present = %t but manifest has-instructions = %t",
				hasInstructions, decoded.HasInstructions),
		}
	}

	return validated, nil
}

func present(span Span, headerEnd uint64) bool {
	return span.Position >= headerEnd
}

// ValidatedReader streams the sections of an archive that passed
// [Reader.Validate]. Section readers share the underlying stream, so
// only one may be read at a time; each seeks to its section on first
// read.
type ValidatedReader struct {
	stream    io.ReadSeeker
	header    Header
	headerEnd uint64
	hash      string
	manifest  *manifest.Manifest
}

// Manifest returns the decoded, validated manifest.
func (v *ValidatedReader) Manifest() *manifest.Manifest { return v.manifest }

// Header returns the archive's table of contents.
func (v *ValidatedReader) Header() Header { return v.header }

// Hash returns the content hash computed by [Open].
func (v *ValidatedReader) Hash() string { return v.hash }

// Section returns a reader over one section, or nil if the section is
// absent (only the instructions section can be).
func (v *ValidatedReader) Section(section Section) io.Reader {
	span := v.header.TOC[section]
	if !present(span, v.headerEnd) {
		return nil
	}
	return &sectionReader{stream: v.stream, position: int64(span.Position), remaining: int64(span.Length)}
}

// ManifestSection returns the raw CBOR manifest section.
func (v *ValidatedReader) ManifestSection() io.Reader { return v.Section(SectionManifest) }

// ConfigSpec returns the raw CBOR configuration schema.
func (v *ValidatedReader) ConfigSpec() io.Reader { return v.Section(SectionConfigSpec) }

// Icon returns the icon. Its extension is Manifest().Assets.Icon().
func (v *ValidatedReader) Icon() io.Reader { return v.Section(SectionIcon) }

// AppImage returns the container image tarball.
func (v *ValidatedReader) AppImage() io.Reader { return v.Section(SectionAppImage) }

// License returns the license text.
func (v *ValidatedReader) License() io.Reader { return v.Section(SectionLicense) }

// Instructions returns the instructions markdown, or nil when the
// package has none.
func (v *ValidatedReader) Instructions() io.Reader { return v.Section(SectionInstructions) }

func (v *ValidatedReader) readSmall(section Section) ([]byte, error) {
	span := v.header.TOC[section]
	if span.Length > maxManifestSize {
		return nil, &CorruptArchiveError{
			Section: section.String(),
			Reason:  fmt.Sprintf("length %d exceeds the %d byte limit", span.Length, maxManifestSize),
		}
	}
	data := make([]byte, span.Length)
	if _, err := io.ReadFull(v.Section(section), data); err != nil {
		return nil, fmt.Errorf("reading %s section: %w", section, err)
	}
	return data, nil
}

// sectionReader is a length-bounded reader that seeks on first use.
type sectionReader struct {
	stream    io.ReadSeeker
	position  int64
	remaining int64
	seeked    bool
}

func (s *sectionReader) Read(p []byte) (int, error) {
	if !s.seeked {
		if _, err := s.stream.Seek(s.position, io.SeekStart); err != nil {
			return 0, fmt.Errorf("seeking to section at %d: %w", s.position, err)
		}
		s.seeked = true
	}
	if s.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.stream.Read(p)
	s.remaining -= int64(n)
	if err == io.EOF && s.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
