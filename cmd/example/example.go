// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package example contains the example command, which prints a starter experiment definition.
package example

import (
	"context"
	"errors"
	"fmt"

	"github.com/matt-FFFFFF/hwloop/internal/experiment"
	"github.com/urfave/cli/v3"
)

// ErrWriteExample is returned when the example cannot be written.
var ErrWriteExample = errors.New("failed to write example")

// ExampleCmd prints a complete experiment definition in YAML.
var ExampleCmd = &cli.Command{
	Name:        "example",
	Usage:       "Print an example experiment definition",
	Description: "Print a voltage sweep definition that uses every section of the file format.",
	Action: func(_ context.Context, cmd *cli.Command) error {
		out, err := experiment.MarshalYAML(experiment.Example())
		if err != nil {
			return errors.Join(ErrWriteExample, err)
		}

		if _, err := fmt.Fprint(cmd.Writer, string(out)); err != nil {
			return errors.Join(ErrWriteExample, err)
		}

		return nil
	},
}
