// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// Engine names a container engine CLI.
type Engine string

const (
	Docker Engine = "docker"
	Podman Engine = "podman"
)

// ExecCommandFunc creates the exec.Cmd for one engine invocation.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecCommand replaces exec.CommandContext.
func WithExecCommand(execCommand ExecCommandFunc) Option {
	return func(r *Runtime) { r.execCommand = execCommand }
}

// WithLogger sets the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// Runtime runs container engine commands.
type Runtime struct {
	engine      Engine
	binary      string
	execCommand ExecCommandFunc
	logger      *slog.Logger
}

// New returns a Runtime that invokes binary as engine.
func New(engine Engine, binary string, options ...Option) *Runtime {
	runtime := &Runtime{
		engine:      engine,
		binary:      binary,
		execCommand: exec.CommandContext,
	}
	for _, option := range options {
		option(runtime)
	}
	if runtime.logger == nil {
		runtime.logger = slog.New(slog.DiscardHandler)
	}
	return runtime
}

// Detect finds the engine binary on PATH. preference is "docker",
// "podman", or "auto" (or empty), which tries docker then podman.
func Detect(preference string, options ...Option) (*Runtime, error) {
	var candidates []Engine
	switch preference {
	case "", "auto":
		candidates = []Engine{Docker, Podman}
	case string(Docker), string(Podman):
		candidates = []Engine{Engine(preference)}
	default:
		return nil, fmt.Errorf("unknown container engine %q (want docker, podman or auto)", preference)
	}
	for _, engine := range candidates {
		if path, err := exec.LookPath(string(engine)); err == nil {
			return New(engine, path, options...), nil
		}
	}
	return nil, fmt.Errorf("no container engine found on PATH (tried %v)", candidates)
}

// Engine returns the engine this runtime drives.
func (r *Runtime) Engine() Engine { return r.engine }

// LoadImage streams an image tarball into the engine's load command.
// The image reader is read to EOF (or until the engine stops reading)
// but not closed.
func (r *Runtime) LoadImage(ctx context.Context, image io.Reader) error {
	_, err := r.run(ctx, "load", image, nil, "load")
	if err != nil {
		return err
	}
	r.logger.Info("image loaded", "engine", r.engine)
	return nil
}

// run executes one engine command. stdin and stdout may be nil; stderr
// is always captured for the error.
func (r *Runtime) run(ctx context.Context, op string, stdin io.Reader, stdout io.Writer, args ...string) (int, error) {
	cmd := r.execCommand(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running container engine", "engine", r.engine, "op", op, "args", args)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	runtimeErr := &RuntimeError{
		Op:       op,
		Engine:   r.engine,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	if ctx.Err() != nil {
		runtimeErr.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		runtimeErr.Err = errors.Join(err, ctx.Err())
		return -1, runtimeErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		runtimeErr.ExitCode = exitErr.ExitCode()
	}
	return runtimeErr.ExitCode, runtimeErr
}
