// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package container drives the host's container engine (docker or
// podman) through its command-line interface.
//
// [Runtime] covers what package installation and the process managers
// need: loading an image tarball from a stream ([Runtime.LoadImage]),
// running a one-shot action with structured input and output
// ([Runtime.Execute]), and the lifecycle of a package's long-running
// main container (Create, Start, Stop, Restart, Remove).
//
// Every failed invocation returns a [*RuntimeError] carrying the
// engine's stderr and exit code. Invocations cut short by a context
// deadline are marked TimedOut and report Retryable.
//
// The command constructor is injectable ([WithExecCommand]) so tests
// can substitute a helper process for the engine binary.
package container
