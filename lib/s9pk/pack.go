// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/appmgr/lib/codec"
	"github.com/bureau-foundation/appmgr/lib/manifest"
)

// PackInput holds the contents of an archive. Pack reads every stream
// to EOF but does not close any of them.
type PackInput struct {
	Manifest *manifest.Manifest

	// ConfigSpec is the configuration schema, encoded as CBOR. A nil
	// ConfigSpec encodes as CBOR null.
	ConfigSpec any

	Icon     io.Reader
	AppImage io.Reader
	License  io.Reader

	// Instructions must be set exactly when Manifest.HasInstructions
	// is.
	Instructions io.Reader
}

func (input *PackInput) check() error {
	if input.Manifest == nil {
		return errors.New("manifest is required")
	}
	if err := input.Manifest.Validate(); err != nil {
		return err
	}
	if input.Icon == nil || input.AppImage == nil || input.License == nil {
		return errors.New("icon, app image and license are required")
	}
	if input.Manifest.HasInstructions && input.Instructions == nil {
		return errors.New("manifest sets has-instructions but no instructions were given")
	}
	if !input.Manifest.HasInstructions && input.Instructions != nil {
		return errors.New("instructions given but the manifest does not set has-instructions")
	}
	return nil
}

// Pack writes an archive to w starting at w's current position and
// returns the header it wrote. On return w is positioned at the end of
// the archive. The caller owns w.
//
// Section positions are absolute offsets in w, so an archive written at
// a non-zero position can only be read from the same stream. Pack
// allows it but logs a warning.
func Pack(w io.WriteSeeker, input PackInput, logger *slog.Logger) (Header, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := input.check(); err != nil {
		return Header{}, fmt.Errorf("packing archive: %w", err)
	}

	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Header{}, fmt.Errorf("finding archive start position: %w", err)
	}
	if start != 0 {
		logger.Warn("writing archive at a non-zero stream position",
			"position", start,
			"package", input.Manifest.ID,
		)
	}

	var placeholder [HeaderSize]byte
	if _, err := w.Write(placeholder[:]); err != nil {
		return Header{}, fmt.Errorf("writing placeholder header: %w", err)
	}

	manifestBytes, err := codec.Marshal(input.Manifest)
	if err != nil {
		return Header{}, &SerializationError{Section: SectionManifest, Err: err}
	}
	configSpecBytes, err := codec.Marshal(input.ConfigSpec)
	if err != nil {
		return Header{}, &SerializationError{Section: SectionConfigSpec, Err: err}
	}

	sources := [sectionCount]io.Reader{
		SectionManifest:     bytes.NewReader(manifestBytes),
		SectionConfigSpec:   bytes.NewReader(configSpecBytes),
		SectionIcon:         input.Icon,
		SectionAppImage:     input.AppImage,
		SectionLicense:      input.License,
		SectionInstructions: input.Instructions,
	}

	var header Header
	for index, source := range sources {
		section := Section(index)
		if source == nil {
			continue
		}
		span, err := writeSection(w, source)
		if err != nil {
			return Header{}, fmt.Errorf("writing %s section: %w", section, err)
		}
		header.TOC[section] = span
		logger.Debug("wrote archive section", "section", section.String(), "position", span.Position, "length", span.Length)
	}

	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Header{}, fmt.Errorf("finding archive end position: %w", err)
	}
	if _, err := w.Seek(start, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("seeking back to header: %w", err)
	}
	encoded := header.encode()
	if _, err := w.Write(encoded[:]); err != nil {
		return Header{}, fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("seeking to archive end: %w", err)
	}
	return header, nil
}

func writeSection(w io.WriteSeeker, source io.Reader) (Span, error) {
	position, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Span{}, err
	}
	if _, err := io.Copy(w, source); err != nil {
		return Span{}, err
	}
	end, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Span{}, err
	}
	return Span{Position: uint64(position), Length: uint64(end - position)}, nil
}
