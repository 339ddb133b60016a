// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/appmgr/lib/install"
)

func TestInstallMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newInstallMetrics(registry)

	metrics.InstallStarted("bitcoind")
	metrics.InstallStarted("lnd")
	if got := promtest.ToFloat64(metrics.inFlight); got != 2 {
		t.Errorf("in flight after two starts = %v, want 2", got)
	}

	metrics.InstallFinished("bitcoind", install.ResultSuccess, 3*time.Second)
	metrics.InstallFinished("lnd", install.ResultFailure, 40*time.Second)

	if got := promtest.ToFloat64(metrics.started); got != 2 {
		t.Errorf("started = %v, want 2", got)
	}
	if got := promtest.ToFloat64(metrics.inFlight); got != 0 {
		t.Errorf("in flight after both finished = %v, want 0", got)
	}
	if got := promtest.ToFloat64(metrics.finished.WithLabelValues(install.ResultSuccess)); got != 1 {
		t.Errorf("finished{success} = %v, want 1", got)
	}
	if got := promtest.ToFloat64(metrics.finished.WithLabelValues(install.ResultFailure)); got != 1 {
		t.Errorf("finished{failure} = %v, want 1", got)
	}

	// One counter, two finished series, two histogram series, one gauge.
	count, err := promtest.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 6 {
		t.Errorf("gathered %d series, want 6", count)
	}
}

func TestInstallMetricsDoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	newInstallMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Error("registering install metrics twice did not panic")
		}
	}()
	newInstallMetrics(registry)
}
