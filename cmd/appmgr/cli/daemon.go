// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/lib/config"
	"github.com/bureau-foundation/appmgr/lib/service"
)

// SocketEnvVar overrides the default daemon socket path.
const SocketEnvVar = "APPMGR_SOCKET"

// DaemonConnection holds the --socket flag for commands that talk to
// appmgrd. Implements [FlagBinder], so embedding it in a params struct
// registers the flag.
type DaemonConnection struct {
	SocketPath string
}

// AddFlags registers --socket. The default is $APPMGR_SOCKET when set,
// then paths.socket from the config file named by $APPMGR_CONFIG, then
// the built-in default.
func (d *DaemonConnection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&d.SocketPath, "socket", DefaultSocketPath(), "appmgrd socket path")
}

// DefaultSocketPath resolves the daemon socket path without flags.
func DefaultSocketPath() string {
	if path := os.Getenv(SocketEnvVar); path != "" {
		return path
	}
	if os.Getenv(config.EnvVar) != "" {
		if cfg, err := config.Load(); err == nil {
			return cfg.Paths.Socket
		}
	}
	return config.Expanded().Paths.Socket
}

// Call sends one action to appmgrd and decodes the response data into
// result. Errors are categorized: daemon error codes map to the
// matching [ToolError] category, and a missing or refusing socket is
// transient.
func (d *DaemonConnection) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	socketPath := d.SocketPath
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	client := service.NewServiceClient(socketPath)
	err := client.Call(ctx, action, fields, result)
	if err == nil {
		return nil
	}

	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case service.CodeInvalid:
			return &ToolError{Category: CategoryValidation, Err: err}
		case service.CodeNotFound:
			return &ToolError{Category: CategoryNotFound, Err: err}
		case service.CodeConflict:
			return &ToolError{Category: CategoryConflict, Err: err}
		default:
			return &ToolError{Category: CategoryInternal, Err: err}
		}
	}
	return DiagnoseSocketError(err, socketPath)
}

// DiagnoseSocketError categorizes a failure to reach the daemon socket
// and adds a hint about the likely cause.
func DiagnoseSocketError(err error, socketPath string) *ToolError {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ECONNREFUSED):
		return Transient("appmgrd is not running (no listener on %s): %w", socketPath, err)
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return Forbidden("permission denied accessing %s; the socket is only open to the daemon's user: %w", socketPath, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Transient("appmgrd did not answer on %s: %w", socketPath, err)
	default:
		return Internal("calling appmgrd on %s: %w", socketPath, err)
	}
}
