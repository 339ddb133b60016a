// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// OpenImageSource opens an image tarball for packing. Files ending in
// .zst or .zstd are zstd-decompressed and files ending in .lz4 are
// lz4-decompressed while being read; anything else is read as is. The
// archive always stores the uncompressed tarball, which is what the
// container runtime's load command expects.
func OpenImageSource(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("opening zstd image %s: %w", path, err)
		}
		return &decompressingSource{Reader: decoder, close: func() error {
			decoder.Close()
			return file.Close()
		}}, nil
	case ".lz4":
		return &decompressingSource{Reader: lz4.NewReader(file), close: file.Close}, nil
	default:
		return file, nil
	}
}

type decompressingSource struct {
	io.Reader
	close func() error
}

func (s *decompressingSource) Close() error { return s.close() }
