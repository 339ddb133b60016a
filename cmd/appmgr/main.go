// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/appmgr/cmd/appmgr/cli"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like progress --watch
		// on a failed install) return an ExitError. Don't print a
		// redundant "error:" line for those.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var toolErr *cli.ToolError
		if errors.As(err, &toolErr) {
			os.Exit(toolErr.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return root().Execute(ctx, os.Args[1:], cli.NewCommandLogger())
}
