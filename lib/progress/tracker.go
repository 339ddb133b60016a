// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/appmgr/lib/clock"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// DefaultInterval is how often DownloadDuring persists a snapshot when
// Tracker.Interval is zero.
const DefaultInterval = 300 * time.Millisecond

// Persister stores progress snapshots durably. The package registry
// implements it.
type Persister interface {
	PutProgress(ctx context.Context, id pkgid.PackageID, snapshot Snapshot) error
}

// Tracker persists the snapshots of one install.
type Tracker struct {
	Progress *InstallProgress
	ID       pkgid.PackageID
	Store    Persister

	// Clock drives DownloadDuring's periodic persistence. Nil means
	// the real clock.
	Clock clock.Clock

	Interval time.Duration
	Logger   *slog.Logger
}

// During runs work, then persists a snapshot whether or not work
// succeeded. The error from work takes precedence; a persistence
// failure after a failed phase is only logged.
func (t *Tracker) During(ctx context.Context, work func(context.Context) error) error {
	return t.finish(ctx, work(ctx))
}

func (t *Tracker) finish(ctx context.Context, workErr error) error {
	persistErr := t.Persist(ctx)
	if workErr != nil {
		if persistErr != nil {
			t.logger().Warn("persisting progress after failed phase",
				"package", t.ID,
				"error", persistErr,
			)
		}
		return workErr
	}
	return persistErr
}

// DownloadDuring is During with additional snapshots every Interval
// while work runs. Periodic persistence failures are logged and do not
// stop the download. The periodic writer is stopped before the final
// snapshot, so the last stored snapshot is never a stale one.
func (t *Tracker) DownloadDuring(ctx context.Context, work func(context.Context) error) error {
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := t.clock().NewTicker(interval)
	done := make(chan struct{})
	var wait sync.WaitGroup
	wait.Add(1)
	go func() {
		defer wait.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := t.Persist(ctx); err != nil {
					t.logger().Warn("persisting download progress",
						"package", t.ID,
						"error", err,
					)
				}
			}
		}
	}()

	workErr := work(ctx)
	close(done)
	wait.Wait()
	ticker.Stop()
	return t.finish(ctx, workErr)
}

// Persist writes the current snapshot. It runs even when ctx is
// cancelled, so a cancelled install still leaves its last progress
// behind.
func (t *Tracker) Persist(ctx context.Context) error {
	if t.Store == nil {
		return nil
	}
	snapshot := t.Progress.Snapshot()
	if err := t.Store.PutProgress(context.WithoutCancel(ctx), t.ID, snapshot); err != nil {
		return fmt.Errorf("persisting progress of %s: %w", t.ID, err)
	}
	return nil
}

func (t *Tracker) clock() clock.Clock {
	if t.Clock == nil {
		return clock.Real()
	}
	return t.Clock
}

func (t *Tracker) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return t.Logger
}
