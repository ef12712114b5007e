// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the hwloop command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/hwloop"
	"github.com/matt-FFFFFF/hwloop/cmd"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)

	defer cancel()

	cmd.RootCmd.Version = fmt.Sprintf("%s (commit: %s)", hwloop.Version, hwloop.Commit)

	// Exit codes returned with cli.Exit are handled by the cli framework.
	if err := cmd.RootCmd.Run(ctx, os.Args); err != nil {
		ctxlog.Error(ctx, "command execution failed", "error", err)
		cancel()
		os.Exit(1)
	}

	ctxlog.Debug(ctx, "command completed successfully")
}
