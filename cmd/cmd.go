// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmd contains the command-line interface (CLI) for the module.
package cmd

import (
	"os"

	"github.com/matt-FFFFFF/hwloop/cmd/example"
	"github.com/matt-FFFFFF/hwloop/cmd/run"
	"github.com/matt-FFFFFF/hwloop/cmd/validate"
	"github.com/urfave/cli/v3"
)

// RootCmd is the root command for the CLI.
var RootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		validate.ValidateCmd,
		example.ExampleCmd,
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "hwloop",
	Description: `hwloop runs hardware test experiments: a test program executed repeatedly as a loop,
a single parameter sweep or a two dimensional shmoo. An operator can pause, step, skip,
retry, end or cancel the experiment while it runs, and stuck workers are supervised through
a staged graceful and forced shutdown.`,
	Usage:     "hwloop run experiment.yaml",
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}
