// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import "io"

// Reader counts bytes read through it as validation or unpack progress
// (see InstallProgress.AddRead). Seeks pass through; bytes read again
// after a seek are counted again.
type Reader struct {
	source   io.ReadSeeker
	progress *InstallProgress
}

// TrackReader wraps source.
func TrackReader(source io.ReadSeeker, progress *InstallProgress) *Reader {
	return &Reader{source: source, progress: progress}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.source.Read(p)
	if n > 0 {
		r.progress.AddRead(n)
	}
	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return r.source.Seek(offset, whence)
}

// Writer counts bytes written through it as downloaded.
type Writer struct {
	destination io.Writer
	progress    *InstallProgress
}

// TrackWriter wraps destination.
func TrackWriter(destination io.Writer, progress *InstallProgress) *Writer {
	return &Writer{destination: destination, progress: progress}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.destination.Write(p)
	if n > 0 {
		w.progress.AddDownloaded(n)
	}
	return n, err
}
