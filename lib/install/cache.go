// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/s9pk"
)

func (p *Pipeline) cacheDir(id pkgid.PackageID, version pkgid.Version) string {
	return filepath.Join(p.config.CacheDir, string(id), version.String())
}

// CachePath is where the archive of id@version is cached.
func (p *Pipeline) CachePath(id pkgid.PackageID, version pkgid.Version) string {
	return filepath.Join(p.cacheDir(id, version), string(id)+".s9pk")
}

func (p *Pipeline) publicDir(id pkgid.PackageID, version pkgid.Version) string {
	return filepath.Join(p.config.PublicDir, string(id), version.String())
}

// openCached returns the cached archive, opened through a tracked
// reader, when its content hash equals the advertised one. Every
// failure is logged and reported as a miss.
func (p *Pipeline) openCached(ctx context.Context, tracker *progress.Tracker, path, hash string, logger *slog.Logger) (*os.File, *s9pk.Reader) {
	if hash == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("opening cached archive", "path", path, "error", err)
		}
		return nil, nil
	}

	var reader *s9pk.Reader
	err = tracker.During(ctx, func(context.Context) error {
		var openErr error
		reader, openErr = s9pk.Open(progress.TrackReader(file, tracker.Progress))
		return openErr
	})
	if err != nil {
		logger.Warn("reading cached archive", "path", path, "error", err)
		file.Close()
		return nil, nil
	}
	if reader.Hash() != hash {
		logger.Warn("cached archive hash mismatch",
			"path", path,
			"cached", reader.Hash(),
			"advertised", hash,
		)
		file.Close()
		return nil, nil
	}
	logger.Info("reusing cached archive", "path", path, "hash", hash)
	return file, reader
}

// download replaces the cache file with the download body. It returns
// the file positioned at its start.
func (p *Pipeline) download(ctx context.Context, tracker *progress.Tracker, path string, download *registry.Download) (*os.File, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale cache file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating cache file: %w", err)
	}

	err = tracker.DownloadDuring(ctx, func(context.Context) error {
		body := &readErrorRecorder{reader: download.Body}
		copied, err := io.Copy(progress.TrackWriter(file, tracker.Progress), body)
		if err != nil {
			if body.err != nil {
				return registry.WrapTransport("downloading archive", body.err)
			}
			return fmt.Errorf("writing cache file: %w", err)
		}
		if download.ContentLength >= 0 && copied != download.ContentLength {
			return registry.WrapTransport("downloading archive",
				fmt.Errorf("received %d of %d bytes: %w", copied, download.ContentLength, io.ErrUnexpectedEOF))
		}
		return file.Sync()
	})
	if err != nil {
		file.Close()
		return nil, err
	}
	tracker.Progress.CompleteDownload()

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("rewinding cache file: %w", err)
	}
	return file, nil
}

// readErrorRecorder remembers the error of the reader it wraps, so a
// failed io.Copy can tell transport errors from local write errors.
type readErrorRecorder struct {
	reader io.Reader
	err    error
}

func (r *readErrorRecorder) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}
