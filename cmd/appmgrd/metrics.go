// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/appmgr/lib/install"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// installMetrics implements install.Metrics with Prometheus
// collectors. Package ids are not used as labels: the label set stays
// bounded no matter how many packages are installed.
type installMetrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var _ install.Metrics = (*installMetrics)(nil)

// newInstallMetrics creates the install collectors and registers them
// with registerer.
func newInstallMetrics(registerer prometheus.Registerer) *installMetrics {
	metrics := &installMetrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "appmgr",
			Name:      "installs_started_total",
			Help:      "Installs that claimed a package slot.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appmgr",
			Name:      "installs_finished_total",
			Help:      "Installs that ran to completion, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appmgr",
			Name:      "install_duration_seconds",
			Help:      "Wall time from slot claim to install result.",
			// Installs range from seconds (cached archive) to tens of
			// minutes (large image over a slow link).
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "appmgr",
			Name:      "installs_in_flight",
			Help:      "Installs currently running.",
		}),
	}
	registerer.MustRegister(metrics.started, metrics.finished, metrics.duration, metrics.inFlight)
	return metrics
}

func (m *installMetrics) InstallStarted(pkgid.PackageID) {
	m.started.Inc()
	m.inFlight.Inc()
}

func (m *installMetrics) InstallFinished(_ pkgid.PackageID, result string, duration time.Duration) {
	m.finished.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(duration.Seconds())
	m.inFlight.Dec()
}
