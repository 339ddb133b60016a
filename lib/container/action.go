// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/appmgr/lib/iofmt"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// Mount is a bind mount of a host directory into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Arg formats the mount for the engine's --mount flag.
func (m Mount) Arg() string {
	arg := "type=bind,src=" + m.Source + ",dst=" + m.Target
	if m.ReadOnly {
		arg += ",readonly"
	}
	return arg
}

// ContainerName is the name of a package's main container.
func ContainerName(id pkgid.PackageID) string {
	return string(id) + ".appmgr"
}

// Action is one container invocation of a package action.
type Action struct {
	Package pkgid.PackageID
	Version pkgid.Version

	// Name distinguishes concurrent actions of the same package in
	// container names ("config-get", "migration-from", ...).
	Name string

	Action manifest.DockerAction

	// Mounts are the resolved host paths of Action.Mounts.
	Mounts []Mount
}

func (a *Action) commonArgs() []string {
	var args []string
	if a.Action.Entrypoint != "" {
		args = append(args, "--entrypoint", a.Action.Entrypoint)
	}
	for _, mount := range a.Mounts {
		args = append(args, "--mount", mount.Arg())
	}
	if a.Action.ShmSizeMB > 0 {
		args = append(args, "--shm-size", strconv.FormatUint(a.Action.ShmSizeMB, 10)+"m")
	}
	return args
}

func (a *Action) imageArgs() []string {
	return append([]string{a.Action.Image.ForPackage(a.Package, a.Version)}, a.Action.Args...)
}

// Output is the standard output of an action.
type Output struct {
	Raw    []byte
	Format iofmt.Format
}

// Decode decodes the output in the action's io-format into v.
func (o *Output) Decode(v any) error {
	if o.Format == "" {
		return fmt.Errorf("action declares no io-format")
	}
	return iofmt.Decode(o.Format, o.Raw, v)
}

// Value returns the decoded output, or the raw output as a trimmed
// string when the action has no io-format or its output does not
// decode.
func (o *Output) Value() any {
	if o.Format != "" {
		var decoded any
		if err := iofmt.Decode(o.Format, o.Raw, &decoded); err == nil {
			return decoded
		}
	}
	return strings.TrimSpace(string(o.Raw))
}

// Execute runs an action to completion in a throwaway container. A
// non-nil input is encoded in the action's io-format and written to
// the container's stdin.
func (r *Runtime) Execute(ctx context.Context, action Action, input any) (*Output, error) {
	format := action.Action.IOFormat
	args := []string{"run", "--rm", "--name", ContainerName(action.Package) + "_" + action.Name}

	var stdin io.Reader
	if input != nil {
		if format == "" {
			return nil, fmt.Errorf("action %s of %s takes no input (no io-format)", action.Name, action.Package)
		}
		encoded, err := iofmt.Encode(format, input)
		if err != nil {
			return nil, fmt.Errorf("encoding input of action %s: %w", action.Name, err)
		}
		stdin = bytes.NewReader(encoded)
		args = append(args, "--interactive")
	}
	args = append(args, action.commonArgs()...)
	args = append(args, action.imageArgs()...)

	var stdout bytes.Buffer
	if _, err := r.run(ctx, "run", stdin, &stdout, args...); err != nil {
		return nil, err
	}
	return &Output{Raw: stdout.Bytes(), Format: format}, nil
}

// Create creates (without starting) the package's main container and
// returns the engine's container id.
func (r *Runtime) Create(ctx context.Context, action Action) (string, error) {
	name := ContainerName(action.Package)
	args := []string{"create", "--name", name, "--hostname", name}
	args = append(args, action.commonArgs()...)
	args = append(args, action.imageArgs()...)

	var stdout bytes.Buffer
	if _, err := r.run(ctx, "create", nil, &stdout, args...); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Start starts a created container.
func (r *Runtime) Start(ctx context.Context, name string) error {
	_, err := r.run(ctx, "start", nil, nil, "start", name)
	return err
}

// Stop stops a running container, killing it after grace.
func (r *Runtime) Stop(ctx context.Context, name string, grace time.Duration) error {
	seconds := strconv.Itoa(int(grace.Round(time.Second) / time.Second))
	_, err := r.run(ctx, "stop", nil, nil, "stop", "--time", seconds, name)
	return err
}

// Restart restarts a container.
func (r *Runtime) Restart(ctx context.Context, name string) error {
	_, err := r.run(ctx, "restart", nil, nil, "restart", name)
	return err
}

// Remove force-removes a container. Removing a container that does not
// exist is not an error.
func (r *Runtime) Remove(ctx context.Context, name string) error {
	_, err := r.run(ctx, "rm", nil, nil, "rm", "--force", name)
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) && strings.Contains(strings.ToLower(runtimeErr.Stderr), "no such container") {
		return nil
	}
	return err
}
