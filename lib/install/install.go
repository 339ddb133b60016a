// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/progress"
	"github.com/bureau-foundation/appmgr/lib/registry"
	"github.com/bureau-foundation/appmgr/lib/s9pk"
)

// install runs everything after the slot transition.
func (p *Pipeline) install(ctx, downloadCtx context.Context, job *Job, resolution *registry.Resolution, logger *slog.Logger) error {
	tracker := &progress.Tracker{
		Progress: job.Progress,
		ID:       job.Package,
		Store:    p.config.Packages,
		Clock:    p.clock,
		Interval: p.config.ProgressInterval,
		Logger:   logger,
	}

	cachePath := p.CachePath(job.Package, job.Version)
	file, reader := p.openCached(ctx, tracker, cachePath, resolution.Download.Hash, logger)
	if file != nil {
		resolution.Download.Body.Close()
		job.Progress.CompleteDownload()
	} else {
		var err error
		file, err = p.download(downloadCtx, tracker, cachePath, resolution.Download)
		if err != nil {
			return fmt.Errorf("downloading %s@%s: %w", job.Package, job.Version, err)
		}
		resolution.Download.Body.Close()
		logger.Info("archive downloaded", "path", cachePath, "bytes", job.Progress.Snapshot().Downloaded)
	}
	defer file.Close()

	var validated *s9pk.ValidatedReader
	err := tracker.During(ctx, func(context.Context) error {
		if reader == nil {
			var err error
			reader, err = s9pk.Open(progress.TrackReader(file, job.Progress))
			if err != nil {
				return err
			}
			if hash := resolution.Download.Hash; hash != "" && reader.Hash() != hash {
				return &s9pk.CorruptArchiveError{
					Section: "archive",
					Reason:  fmt.Sprintf("content hash %s does not match advertised %s", reader.Hash(), hash),
				}
			}
		}
		var err error
		validated, err = reader.Validate()
		if err != nil {
			return err
		}
		archived := validated.Manifest()
		if archived.ID != job.Package || !archived.Version.Equal(job.Version) {
			return &s9pk.CorruptArchiveError{
				Section: s9pk.SectionManifest.String(),
				Reason:  fmt.Sprintf("archive contains %s@%s, expected %s@%s", archived.ID, archived.Version, job.Package, job.Version),
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("validating %s: %w", cachePath, err)
	}
	job.Progress.CompleteValidation()
	m := validated.Manifest()

	if err := p.unpack(ctx, tracker, validated, logger); err != nil {
		return fmt.Errorf("unpacking %s@%s: %w", job.Package, job.Version, err)
	}

	previous, err := p.commit(ctx, job, m, logger)
	if err != nil {
		return err
	}
	if previous != nil {
		if err := p.migrate(ctx, job, previous, m, logger); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) unpack(ctx context.Context, tracker *progress.Tracker, validated *s9pk.ValidatedReader, logger *slog.Logger) error {
	m := validated.Manifest()
	directory := p.publicDir(m.ID, m.Version)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating public directory: %w", err)
	}

	phases := []struct {
		phase progress.Phase
		skip  bool
		work  func(context.Context) error
	}{
		{progress.PhaseLicense, false, func(context.Context) error {
			return writeAsset(filepath.Join(directory, "LICENSE.md"), validated.License())
		}},
		{progress.PhaseInstructions, !m.HasInstructions, func(context.Context) error {
			return writeAsset(filepath.Join(directory, "INSTRUCTIONS.md"), validated.Instructions())
		}},
		{progress.PhaseIcon, false, func(context.Context) error {
			return writeAsset(filepath.Join(directory, "icon."+m.Assets.Icon()), validated.Icon())
		}},
		{progress.PhaseImageLoaded, false, func(ctx context.Context) error {
			loadCtx, cancel := context.WithTimeout(ctx, p.config.ImageLoadTimeout)
			defer cancel()
			return p.config.Images.LoadImage(loadCtx, validated.AppImage())
		}},
	}
	for _, phase := range phases {
		if phase.skip {
			continue
		}
		if err := tracker.During(ctx, phase.work); err != nil {
			return fmt.Errorf("%s: %w", phase.phase, err)
		}
		tracker.Progress.Complete(phase.phase)
		logger.Debug("unpack phase complete", "phase", phase.phase)
	}

	tracker.Progress.CompleteUnpack()
	if err := tracker.Persist(ctx); err != nil {
		return err
	}
	logger.Info("archive unpacked", "public", directory)
	return nil
}

func writeAsset(path string, source io.Reader) error {
	if source == nil {
		return fmt.Errorf("%s: section missing from archive", filepath.Base(path))
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, source); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// migrate runs the update migrations: the previous version's "to"
// migration, then the new version's "from" migration. If both keep the
// configuration valid the package is reconfigured and started.
func (p *Pipeline) migrate(ctx context.Context, job *Job, previous *previousInstall, m *manifest.Manifest, logger *slog.Logger) error {
	configured := previous.configured
	toResult, err := p.config.Migrations.To(ctx, previous.manifest, m.Version)
	if err != nil {
		return fmt.Errorf("migrating %s to %s: %w", job.Package, m.Version, err)
	}
	if toResult != nil {
		configured = configured && toResult.Configured
	}
	fromResult, err := p.config.Migrations.From(ctx, m, previous.manifest.Version)
	if err != nil {
		return fmt.Errorf("migrating %s from %s: %w", job.Package, previous.manifest.Version, err)
	}
	if fromResult != nil {
		configured = configured && fromResult.Configured
	}

	if !configured {
		logger.Info("package needs configuration after update", "previous_version", previous.manifest.Version)
		return p.setStatus(ctx, job, false, false)
	}
	if _, err := p.config.Configurator.Configure(ctx, m); err != nil {
		return fmt.Errorf("reconfiguring %s: %w", job.Package, err)
	}
	if err := p.config.Managers.Start(ctx, job.Package); err != nil {
		return err
	}
	return p.setStatus(ctx, job, true, true)
}
