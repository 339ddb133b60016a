// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
	"github.com/bureau-foundation/appmgr/lib/schema"
)

type statusParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show one package's registry entry",
		Usage:   "appmgr status <package>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := cli.RequireArgs(args, "appmgr status <package>", "package"); err != nil {
				return err
			}
			id, err := pkgid.ParsePackageID(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}

			var status schema.PackageStatus
			if err := params.Call(ctx, schema.ActionStatus, map[string]any{"package": string(id)}, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(status); done {
				return err
			}
			printStatus(os.Stdout, status, painter{color: cli.IsTerminal()})
			return nil
		},
	}
}

func printStatus(w io.Writer, status schema.PackageStatus, paint painter) {
	title := ""
	if status.Manifest != nil {
		title = status.Manifest.Title
	}
	fmt.Fprintf(w, "%s %s  %s\n", paint.heading(string(status.Package)), status.Version, title)
	fmt.Fprintf(w, "  state:    %s\n", paint.state(status.State, false))
	if status.Incoming != nil {
		fmt.Fprintf(w, "  incoming: %s\n", status.Incoming)
	}
	if status.Progress != nil {
		fmt.Fprintf(w, "  progress: %s\n", progressLine(*status.Progress))
	}
	if status.Installed == nil {
		return
	}

	installed := status.Installed
	mainStatus := installed.Status.Main
	fmt.Fprintf(w, "  main:     %s\n", paint.main(&mainStatus))
	fmt.Fprintf(w, "  configured: %v\n", installed.Status.Configured)

	if len(installed.CurrentDependencies) > 0 {
		ids := slices.Sorted(maps.Keys(installed.CurrentDependencies))
		fmt.Fprintf(w, "  dependencies:\n")
		for _, dep := range ids {
			info := installed.CurrentDependencies[dep]
			fmt.Fprintf(w, "    %s %s (%s)\n", dep, info.Version, info.Satisfaction)
		}
	}
	if len(installed.Status.DependencyErrors) > 0 {
		ids := slices.Sorted(maps.Keys(installed.Status.DependencyErrors))
		fmt.Fprintf(w, "  dependency errors:\n")
		for _, dep := range ids {
			fmt.Fprintf(w, "    %s: %s\n", dep, paint.paint(styleBad, string(installed.Status.DependencyErrors[dep].Type)))
		}
	}
	if len(installed.InterfaceAddresses) > 0 {
		ids := slices.Sorted(maps.Keys(installed.InterfaceAddresses))
		fmt.Fprintf(w, "  interfaces:\n")
		for _, iface := range ids {
			addresses := installed.InterfaceAddresses[iface]
			fmt.Fprintf(w, "    %s: %s\n", iface, strings.Join([]string{addresses.TorAddress, addresses.LanAddress}, " "))
		}
	}
}

type listParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List registered packages",
		Description: `List every package in the registry: installed packages and
installs or updates that are running or stopped part way. Broken
packages are flagged.`,
		Usage: "appmgr list",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			var summaries []schema.PackageSummary
			if err := params.Call(ctx, schema.ActionList, nil, &summaries); err != nil {
				return err
			}
			if done, err := params.EmitJSON(summaries); done {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(os.Stderr, "no packages registered")
				return nil
			}
			return printList(os.Stdout, summaries, painter{color: cli.IsTerminal()})
		},
	}
}

func printList(w io.Writer, summaries []schema.PackageSummary, paint painter) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PACKAGE\tVERSION\tSTATE\tMAIN\tTITLE")
	for _, summary := range summaries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			summary.Package,
			summary.Version,
			paint.state(summary.State, summary.Broken),
			paint.main(summary.Main),
			summary.Title)
	}
	return writer.Flush()
}
