// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

func testManifest(hasInstructions bool) *manifest.Manifest {
	return &manifest.Manifest{
		ID:              "hello",
		Version:         pkgid.MustParseVersion("1.2.3"),
		Title:           "Hello World",
		HasInstructions: hasInstructions,
		Assets:          manifest.Assets{IconType: "svg"},
		Main: manifest.DockerAction{
			Image:      "main",
			Entrypoint: "hello",
			Mounts:     map[pkgid.VolumeID]string{"main": "/data"},
		},
		Volumes: map[pkgid.VolumeID]manifest.Volume{
			"main": {Type: manifest.VolumeData},
		},
	}
}

type archiveContents struct {
	icon, image, license, instructions string
}

var defaultContents = archiveContents{
	icon:         "<svg/>",
	image:        strings.Repeat("layer-data", 1000),
	license:      "MIT License",
	instructions: "# Getting started\n",
}

func packInput(m *manifest.Manifest, contents archiveContents) PackInput {
	input := PackInput{
		Manifest:   m,
		ConfigSpec: map[string]any{"rpc-user": map[string]any{"type": "string"}},
		Icon:       strings.NewReader(contents.icon),
		AppImage:   strings.NewReader(contents.image),
		License:    strings.NewReader(contents.license),
	}
	if m.HasInstructions {
		input.Instructions = strings.NewReader(contents.instructions)
	}
	return input
}

// packFile writes an archive to a temp file and returns the open file
// rewound to the start.
func packFile(t *testing.T, input PackInput) (*os.File, Header) {
	t.Helper()
	file, err := os.Create(filepath.Join(t.TempDir(), "test.s9pk"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { file.Close() })

	header, err := Pack(file, input, nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	return file, header
}

func openValidated(t *testing.T, stream io.ReadSeeker) *ValidatedReader {
	t.Helper()
	reader, err := Open(stream)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	validated, err := reader.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return validated
}

func readSection(t *testing.T, r io.Reader) string {
	t.Helper()
	if r == nil {
		t.Fatal("section reader is nil")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading section: %v", err)
	}
	return string(data)
}

func TestRoundTrip(t *testing.T) {
	file, _ := packFile(t, packInput(testManifest(true), defaultContents))
	validated := openValidated(t, file)

	decoded := validated.Manifest()
	if decoded.ID != "hello" || decoded.Version.String() != "1.2.3" || decoded.Assets.Icon() != "svg" {
		t.Errorf("manifest = %+v", decoded)
	}
	if decoded.Main.Mounts["main"] != "/data" {
		t.Errorf("main mounts = %v", decoded.Main.Mounts)
	}

	// Sections are read in reverse order to exercise the lazy seek.
	if got := readSection(t, validated.Instructions()); got != defaultContents.instructions {
		t.Errorf("instructions = %q", got)
	}
	if got := readSection(t, validated.License()); got != defaultContents.license {
		t.Errorf("license = %q", got)
	}
	if got := readSection(t, validated.AppImage()); got != defaultContents.image {
		t.Errorf("app image has %d bytes, want %d", len(got), len(defaultContents.image))
	}
	if got := readSection(t, validated.Icon()); got != defaultContents.icon {
		t.Errorf("icon = %q", got)
	}
	if readSection(t, validated.ConfigSpec()) == "" {
		t.Error("config spec section is empty")
	}
	if readSection(t, validated.ManifestSection()) == "" {
		t.Error("manifest section is empty")
	}
}

func TestRoundTripWithoutInstructions(t *testing.T) {
	file, header := packFile(t, packInput(testManifest(false), defaultContents))
	if header.Span(SectionInstructions) != (Span{}) {
		t.Errorf("instructions span = %+v, want zero", header.Span(SectionInstructions))
	}
	validated := openValidated(t, file)
	if validated.Instructions() != nil {
		t.Error("Instructions() is non-nil for an archive without instructions")
	}
}

func TestHeaderWrittenInSecondPass(t *testing.T) {
	file, header := packFile(t, packInput(testManifest(true), defaultContents))

	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(file, raw); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw[:8], []byte{'S', '9', 'P', 'K', FormatVersion, 0, 0, 0}) {
		t.Fatalf("magic = %x", raw[:8])
	}

	// Sections follow the header back to back, in table order.
	expected := uint64(HeaderSize)
	for index := 0; index < sectionCount; index++ {
		offset := 8 + index*tocEntrySize
		position := binary.LittleEndian.Uint64(raw[offset:])
		length := binary.LittleEndian.Uint64(raw[offset+8:])
		if position != header.TOC[index].Position || length != header.TOC[index].Length {
			t.Errorf("%s: on disk {%d,%d}, returned %+v", Section(index), position, length, header.TOC[index])
		}
		if position != expected {
			t.Errorf("%s at %d, want %d", Section(index), position, expected)
		}
		expected += length
	}

	info, err := file.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if uint64(info.Size()) != expected {
		t.Errorf("file size = %d, want %d", info.Size(), expected)
	}
	if got := header.Span(SectionAppImage).Length; got != uint64(len(defaultContents.image)) {
		t.Errorf("app image length = %d", got)
	}
}

func TestPackLeavesStreamAtEnd(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "end.s9pk"))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := Pack(file, packInput(testManifest(false), defaultContents), nil); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	position, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	info, err := file.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if position != info.Size() {
		t.Errorf("position after Pack = %d, file size = %d", position, info.Size())
	}
}

func TestPackAtNonZeroPosition(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "offset.s9pk"))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	prefix := []byte("sixteen-byte-pfx")
	if _, err := file.Write(prefix); err != nil {
		t.Fatal(err)
	}

	header, err := Pack(file, packInput(testManifest(false), defaultContents), nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if got := header.Span(SectionManifest).Position; got != uint64(len(prefix)+HeaderSize) {
		t.Errorf("manifest position = %d, want absolute %d", got, len(prefix)+HeaderSize)
	}

	if _, err := file.Seek(int64(len(prefix)), io.SeekStart); err != nil {
		t.Fatal(err)
	}
	validated := openValidated(t, file)
	if got := readSection(t, validated.License()); got != defaultContents.license {
		t.Errorf("license = %q", got)
	}
}

func TestPackRejectsInconsistentInstructions(t *testing.T) {
	withoutText := packInput(testManifest(true), defaultContents)
	withoutText.Instructions = nil

	unexpected := packInput(testManifest(false), defaultContents)
	unexpected.Instructions = strings.NewReader("surprise")

	for name, input := range map[string]PackInput{"missing": withoutText, "unexpected": unexpected} {
		t.Run(name, func(t *testing.T) {
			var buffer seekBuffer
			if _, err := Pack(&buffer, input, nil); err == nil {
				t.Fatal("Pack accepted inconsistent instructions")
			}
			if len(buffer.data) != 0 {
				t.Errorf("Pack wrote %d bytes before rejecting", len(buffer.data))
			}
		})
	}
}

func TestOpenHashesWholeStream(t *testing.T) {
	file, _ := packFile(t, packInput(testManifest(true), defaultContents))
	reader, err := Open(file)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ValidHash(reader.Hash()) {
		t.Fatalf("Hash() = %q is not a valid hash", reader.Hash())
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	expected, length, err := HashReader(file)
	if err != nil {
		t.Fatal(err)
	}
	if reader.Hash() != expected || reader.Length() != length {
		t.Errorf("Open hash/length = %s/%d, want %s/%d", reader.Hash(), reader.Length(), expected, length)
	}

	// Any change to the content changes the hash.
	other, _ := packFile(t, packInput(testManifest(true), archiveContents{
		icon: "<svg/>", image: "different", license: "MIT License", instructions: "x",
	}))
	otherReader, err := Open(other)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if otherReader.Hash() == reader.Hash() {
		t.Error("different archives produced the same hash")
	}
}

func TestValidateRejectsCorruptArchives(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(raw []byte, header Header)
		section string
	}{
		{
			name:    "bad magic",
			corrupt: func(raw []byte, _ Header) { raw[0] = 'X' },
			section: "header",
		},
		{
			name:    "unsupported version",
			corrupt: func(raw []byte, _ Header) { raw[4] = 9 },
			section: "header",
		},
		{
			name:    "reserved byte set",
			corrupt: func(raw []byte, _ Header) { raw[6] = 1 },
			section: "header",
		},
		{
			name: "span past end",
			corrupt: func(raw []byte, header Header) {
				putSpan(raw, SectionLicense, Span{Position: header.Span(SectionLicense).Position, Length: 1 << 30})
			},
			section: "license",
		},
		{
			name: "position inside header",
			corrupt: func(raw []byte, _ Header) {
				putSpan(raw, SectionIcon, Span{Position: 8, Length: 4})
			},
			section: "icon",
		},
		{
			name: "missing required section",
			corrupt: func(raw []byte, _ Header) {
				putSpan(raw, SectionAppImage, Span{})
			},
			section: "app_image",
		},
		{
			name: "overlapping sections",
			corrupt: func(raw []byte, header Header) {
				putSpan(raw, SectionIcon, header.Span(SectionAppImage))
			},
			section: "icon",
		},
		{
			name: "instructions not declared",
			corrupt: func(raw []byte, header Header) {
				// An empty instructions section at the end of the stream.
				license := header.Span(SectionLicense)
				putSpan(raw, SectionInstructions, Span{Position: license.End(), Length: 0})
			},
			section: "instructions",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			file, header := packFile(t, packInput(testManifest(false), defaultContents))
			raw := make([]byte, HeaderSize)
			if _, err := io.ReadFull(file, raw); err != nil {
				t.Fatal(err)
			}
			test.corrupt(raw, header)
			if _, err := file.WriteAt(raw, 0); err != nil {
				t.Fatal(err)
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				t.Fatal(err)
			}

			reader, err := Open(file)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			_, err = reader.Validate()
			var corrupt *CorruptArchiveError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Validate error = %v, want *CorruptArchiveError", err)
			}
			if corrupt.Section != test.section {
				t.Errorf("Section = %q, want %q (%v)", corrupt.Section, test.section, err)
			}
		})
	}
}

func TestValidateRejectsUndecodableManifest(t *testing.T) {
	file, header := packFile(t, packInput(testManifest(false), defaultContents))
	manifestSpan := header.Span(SectionManifest)
	garbage := bytes.Repeat([]byte{0xff}, int(manifestSpan.Length))
	if _, err := file.WriteAt(garbage, int64(manifestSpan.Position)); err != nil {
		t.Fatal(err)
	}

	reader, err := Open(file)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := reader.Validate(); !IsDeserialization(err) {
		t.Fatalf("Validate error = %v, want *DeserializationError", err)
	}
}

func TestOpenRejectsTruncatedStream(t *testing.T) {
	_, err := Open(bytes.NewReader([]byte("S9PK")))
	if !IsCorruptArchive(err) {
		t.Fatalf("Open error = %v, want *CorruptArchiveError", err)
	}
}

func TestOpenImageSource(t *testing.T) {
	directory := t.TempDir()
	payload := strings.Repeat("image tarball bytes ", 500)

	plain := filepath.Join(directory, "image.tar")
	if err := os.WriteFile(plain, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	zstdPath := filepath.Join(directory, "image.tar.zst")
	var zstdBuffer bytes.Buffer
	zstdWriter, err := zstd.NewWriter(&zstdBuffer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zstdWriter.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := zstdWriter.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(zstdPath, zstdBuffer.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	lz4Path := filepath.Join(directory, "image.tar.lz4")
	var lz4Buffer bytes.Buffer
	lz4Writer := lz4.NewWriter(&lz4Buffer)
	if _, err := lz4Writer.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := lz4Writer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lz4Path, lz4Buffer.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, zstdPath, lz4Path} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			source, err := OpenImageSource(path)
			if err != nil {
				t.Fatalf("OpenImageSource: %v", err)
			}
			defer source.Close()
			data, err := io.ReadAll(source)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(data) != payload {
				t.Errorf("read %d bytes, want the %d byte payload", len(data), len(payload))
			}
		})
	}
}

func TestValidHash(t *testing.T) {
	if !ValidHash(strings.Repeat("ab", HashSize)) {
		t.Error("ValidHash rejected a lowercase hex hash")
	}
	for _, bad := range []string{"", "abc", strings.Repeat("AB", HashSize), strings.Repeat("zz", HashSize)} {
		if ValidHash(bad) {
			t.Errorf("ValidHash(%q) = true", bad)
		}
	}
}

func putSpan(raw []byte, section Section, span Span) {
	offset := 8 + int(section)*tocEntrySize
	binary.LittleEndian.PutUint64(raw[offset:], span.Position)
	binary.LittleEndian.PutUint64(raw[offset+8:], span.Length)
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data     []byte
	position int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.position + int64(len(p))
	if end > int64(len(b.data)) {
		b.data = append(b.data, make([]byte, end-int64(len(b.data)))...)
	}
	copy(b.data[b.position:], p)
	b.position = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.position = offset
	case io.SeekCurrent:
		b.position += offset
	case io.SeekEnd:
		b.position = int64(len(b.data)) + offset
	}
	return b.position, nil
}
