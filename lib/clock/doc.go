// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Code that reads the time or waits on it takes a Clock instead of
// calling time.Now, time.After or time.NewTicker directly. Production
// wiring uses Real(); tests use Fake(), which advances only when
// Advance is called.
//
// The install pipeline's progress tracker is the main consumer: it
// persists progress snapshots on a ticker while a download runs, and
// tests drive that ticker deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	tracker := &progress.Tracker{Clock: c, Interval: time.Second, ...}
//	go tracker.DownloadDuring(ctx, work)
//	c.WaitForTimers(1)      // the ticker is registered
//	c.Advance(time.Second)  // one periodic snapshot
//
// WaitForTimers closes the race between a goroutine registering a
// ticker and the test advancing the clock past it.
package clock
