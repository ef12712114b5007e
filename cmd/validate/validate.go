// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package validate contains the validate command, which checks experiment definitions without running them.
package validate

import (
	"context"
	"fmt"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/experiment"
	"github.com/urfave/cli/v3"
)

const (
	fileArg    = "file"
	cliExitStr = ""
	exitConfig = 1
)

// ValidateCmd checks that each given definition decodes and builds.
var ValidateCmd = &cli.Command{
	Name:  "validate",
	Usage: "Check experiment definitions without running them",
	Description: `Decode and validate one or more local YAML or HCL experiment definitions.
Every problem in a file is reported, not only the first.`,
	Arguments: []cli.Argument{
		&cli.StringArgs{
			Name:      fileArg,
			UsageText: "FILE...",
			Min:       1,
			Max:       -1,
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)
	failed := 0

	for _, path := range cmd.StringArgs(fileArg) {
		def, err := experiment.Load(path)
		if err == nil {
			_, err = def.Build(experiment.Overrides{})
		}

		if err != nil {
			failed++

			logger.Error(fmt.Sprintf("%s is not valid: %s", path, err.Error()))

			continue
		}

		_, _ = fmt.Fprintf(cmd.Writer, "%s: ok\n", path)
	}

	if failed > 0 {
		return cli.Exit(cliExitStr, exitConfig)
	}

	return nil
}
