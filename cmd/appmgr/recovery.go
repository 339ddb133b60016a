// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/install"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/pkgstate"
	"github.com/bureau-foundation/appmgr/lib/schema"
)

type brokenParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func brokenCommand() *cli.Command {
	var params brokenParams

	return &cli.Command{
		Name:    "broken",
		Summary: "List installs that failed",
		Description: `List packages whose last install or update failed, with the
error it failed with. A broken package keeps its partial registry entry
until "appmgr cleanup" rolls it back or a new install succeeds.`,
		Usage: "appmgr broken",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("broken", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			var broken []pkgstate.BrokenPackage
			if err := params.Call(ctx, schema.ActionBroken, nil, &broken); err != nil {
				return err
			}
			if done, err := params.EmitJSON(broken); done {
				return err
			}
			if len(broken) == 0 {
				fmt.Fprintln(os.Stderr, "no broken packages")
				return nil
			}
			return printBroken(os.Stdout, broken, time.Now())
		},
	}
}

func printBroken(w io.Writer, broken []pkgstate.BrokenPackage, now time.Time) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PACKAGE\tFAILED\tERROR")
	for _, record := range broken {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", record.ID, humanize.RelTime(record.RecordedAt, now, "ago", "from now"), record.Error)
	}
	return writer.Flush()
}

type cleanupParams struct {
	cli.DaemonConnection
}

func cleanupCommand() *cli.Command {
	var params cleanupParams

	return &cli.Command{
		Name:    "cleanup",
		Summary: "Roll back a failed install or update",
		Description: `Roll back an install or update that stopped part way.

A failed fresh install is removed from the registry along with its
cached archive, public assets, volumes and interface keys. A failed
update restores the previously installed version. Installed packages
and installs that are still running are refused.`,
		Usage: "appmgr cleanup <package>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cleanup", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr cleanup <package>", "package"); err != nil {
				return err
			}
			id, err := pkgid.ParsePackageID(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}
			if err := params.Call(ctx, schema.ActionCleanup, map[string]any{"package": string(id)}, nil); err != nil {
				return err
			}
			logger.Info("install rolled back", "package", id)
			return nil
		},
	}
}

type reconcileParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func reconcileCommand() *cli.Command {
	var params reconcileParams

	return &cli.Command{
		Name:    "reconcile",
		Summary: "Repair secret keys left by failed registry commits",
		Description: `Resolve the markers an install leaves when its final registry
commit fails. Keys of installs that never landed are deleted; keys an
installed version still uses are kept. appmgrd also runs this at
startup.`,
		Usage: "appmgr reconcile",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("reconcile", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			var outcomes []install.ReconcileOutcome
			if err := params.Call(ctx, schema.ActionReconcile, nil, &outcomes); err != nil {
				return err
			}
			if done, err := params.EmitJSON(outcomes); done {
				return err
			}
			printReconcile(os.Stdout, outcomes)
			return nil
		},
	}
}

func printReconcile(w io.Writer, outcomes []install.ReconcileOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "nothing to reconcile")
		return
	}
	for _, outcome := range outcomes {
		line := fmt.Sprintf("%s %s: %s", outcome.Marker.Package, outcome.Marker.Version, outcome.Action)
		if outcome.KeysRemoved > 0 {
			line += fmt.Sprintf(" (%d keys removed)", outcome.KeysRemoved)
		}
		fmt.Fprintln(w, line)
	}
}
