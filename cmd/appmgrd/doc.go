// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// appmgrd is the package installation daemon. It owns the package
// registry and secret store databases, runs installs through the
// install pipeline, and serves the socket actions listed in
// lib/schema to the appmgr CLI.
//
// Usage:
//
//	appmgrd --config /etc/appmgr/appmgrd.yaml
//
// The config path may also come from $APPMGR_CONFIG. On startup the
// daemon generates its age identity if absent, detects the container
// engine, and reconciles installs interrupted by a previous crash. On
// SIGINT or SIGTERM it stops accepting requests, cancels in-flight
// installs (they are recorded as broken) and exits.
//
// When metrics.listen is set, Prometheus metrics are served at
// /metrics on that address.
package main
