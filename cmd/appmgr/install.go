// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/schema"
)

// WatchOptions are the flags shared by commands that can follow an
// install.
type WatchOptions struct {
	Watch    bool          `json:"watch"    flag:"watch,w"  desc:"follow progress until the install finishes"`
	Interval time.Duration `json:"interval" flag:"interval" desc:"progress poll interval" default:"500ms"`
}

type installParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	WatchOptions
}

func installCommand() *cli.Command {
	var params installParams

	return &cli.Command{
		Name:    "install",
		Summary: "Install or update a package",
		Description: `Ask appmgrd to install a package from the registry.

The target is a package id, optionally followed by @ and a version
range; the newest matching version is installed. If the package is
already installed this is an update. The command returns once the
daemon has claimed the package; use --watch (or "appmgr progress") to
follow the install.`,
		Usage: "appmgr install <package>[@<range>] [--watch]",
		Examples: []cli.Example{
			{
				Description: "Install the newest 0.21 release and wait for it",
				Command:     "appmgr install 'bitcoind@>=0.21.0 <0.22.0' --watch",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("install", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr install <package>[@<range>]", "package"); err != nil {
				return err
			}
			if _, err := pkgid.ParseTarget(args[0]); err != nil {
				return cli.Validation("%w", err)
			}

			var started schema.InstallResponse
			if err := params.Call(ctx, schema.ActionInstall, map[string]any{"package": args[0]}, &started); err != nil {
				return err
			}
			logger.Debug("install started", "package", started.Package, "version", started.Version, "attempt", started.Attempt)

			if !params.Watch {
				if done, err := params.EmitJSON(started); done {
					return err
				}
				verb := "installing"
				if started.Updating {
					verb = "updating"
				}
				fmt.Fprintf(os.Stdout, "%s %s %s\n", verb, started.Package, started.Version)
				return nil
			}
			return watchInstall(ctx, &params.DaemonConnection, started.Package, params.Interval, os.Stdout, painter{color: cli.IsTerminal()})
		},
	}
}

type progressParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	WatchOptions
}

func progressCommand() *cli.Command {
	var params progressParams

	return &cli.Command{
		Name:    "progress",
		Summary: "Show the progress of an install",
		Description: `Show how far an install has come: bytes downloaded, validated
and unpacked, and which assets have been written.

An install that stopped without finishing reports its last progress
with "live" false. Once a package is installed there is no progress to
report and the command fails with "not found".`,
		Usage: "appmgr progress <package> [--watch]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("progress", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr progress <package>", "package"); err != nil {
				return err
			}
			id, err := pkgid.ParsePackageID(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}
			if params.Watch {
				return watchInstall(ctx, &params.DaemonConnection, id, params.Interval, os.Stdout, painter{color: cli.IsTerminal()})
			}

			var response schema.ProgressResponse
			if err := params.Call(ctx, schema.ActionProgress, map[string]any{"package": string(id)}, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(response); done {
				return err
			}
			state := "running"
			if !response.Live {
				state = "stopped"
			}
			fmt.Fprintf(os.Stdout, "%s (%s): %s\n", id, state, progressLine(response.Snapshot))
			return nil
		},
	}
}

// watchInstall polls an install's progress until it leaves the
// pipeline. An install that finishes Installed returns nil; one that
// stopped without finishing prints the recorded failure and returns an
// [cli.ExitError].
func watchInstall(ctx context.Context, connection *cli.DaemonConnection, id pkgid.PackageID, interval time.Duration, w io.Writer, paint painter) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastLine := ""
	for {
		var response schema.ProgressResponse
		err := connection.Call(ctx, schema.ActionProgress, map[string]any{"package": string(id)}, &response)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err == nil && response.Live:
			if line := progressLine(response.Snapshot); line != lastLine {
				fmt.Fprintf(w, "%s: %s\n", id, line)
				lastLine = line
			}
		case err == nil:
			return reportFailedInstall(ctx, connection, id, w, paint)
		case cli.CategoryOf(err) == cli.CategoryNotFound:
			return reportFinishedInstall(ctx, connection, id, w, paint)
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportFinishedInstall(ctx context.Context, connection *cli.DaemonConnection, id pkgid.PackageID, w io.Writer, paint painter) error {
	var status schema.PackageStatus
	if err := connection.Call(ctx, schema.ActionStatus, map[string]any{"package": string(id)}, &status); err != nil {
		if cli.CategoryOf(err) == cli.CategoryNotFound {
			return cli.NotFound("%s is no longer registered; the install was cleaned up", id)
		}
		return err
	}
	fmt.Fprintf(w, "%s %s %s\n", id, status.Version, paint.state(status.State, false))
	return nil
}

func reportFailedInstall(ctx context.Context, connection *cli.DaemonConnection, id pkgid.PackageID, w io.Writer, paint painter) error {
	var broken []pkgstate.BrokenPackage
	if err := connection.Call(ctx, schema.ActionBroken, nil, &broken); err != nil {
		return err
	}
	reason := "stopped without finishing"
	for _, record := range broken {
		if record.ID == id {
			reason = record.Error
		}
	}
	fmt.Fprintf(w, "%s %s: %s\n", id, paint.paint(styleBad, "failed"), reason)
	fmt.Fprintf(w, "run 'appmgr cleanup %s' to roll it back\n", id)
	return &cli.ExitError{Code: 1}
}
