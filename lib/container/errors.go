// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError reports a failed container engine invocation.
type RuntimeError struct {
	// Op is the engine subcommand ("load", "run", "create", ...).
	Op     string
	Engine Engine

	// ExitCode is the engine's exit status, or -1 when the process
	// did not exit normally (killed, or failed to start).
	ExitCode int

	// Stderr is the engine's captured standard error, trimmed.
	Stderr string

	// TimedOut is set when the invocation was killed because its
	// context deadline passed.
	TimedOut bool

	Err error
}

func (e *RuntimeError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s %s", e.Engine, e.Op)
	switch {
	case e.TimedOut:
		builder.WriteString(" timed out")
	case e.ExitCode >= 0:
		fmt.Fprintf(&builder, " exited with status %d", e.ExitCode)
	default:
		fmt.Fprintf(&builder, " failed: %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&builder, ": %s", e.Stderr)
	}
	return builder.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the invocation could succeed.
func (e *RuntimeError) Retryable() bool { return e.TimedOut }

// IsRuntimeError reports whether err is (or wraps) a *RuntimeError.
func IsRuntimeError(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}
