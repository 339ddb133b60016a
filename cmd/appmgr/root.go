// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
	"github.com/bureau-foundation/appmgr/lib/version"
)

// root builds the complete appmgr command tree.
func root() *cli.Command {
	return &cli.Command{
		Name: "appmgr",
		Description: `appmgr: package archives and installs.

Build and inspect .s9pk archives, and drive installs on the local
appmgrd daemon.`,
		Subcommands: []*cli.Command{
			packCommand(),
			inspectCommand(),
			installCommand(),
			progressCommand(),
			statusCommand(),
			listCommand(),
			brokenCommand(),
			cleanupCommand(),
			reconcileCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Fprintf(os.Stdout, "appmgr %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Build an archive from a manifest and a compressed image",
				Command:     "appmgr pack --manifest manifest.yaml --image image.tar.zst --icon icon.png --license LICENSE.md",
			},
			{
				Description: "Install a package and follow its progress",
				Command:     "appmgr install 'bitcoind@>=0.21.0 <0.22.0' --watch",
			},
			{
				Description: "See what is installed",
				Command:     "appmgr list",
			},
			{
				Description: "Roll back an install that failed",
				Command:     "appmgr cleanup bitcoind",
			},
		},
	}
}
