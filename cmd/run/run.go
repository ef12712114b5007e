// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package run contains the run command, which executes an experiment definition.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matt-FFFFFF/hwloop/internal/console"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/experiment"
	"github.com/matt-FFFFFF/hwloop/internal/lifecycle"
	"github.com/matt-FFFFFF/hwloop/internal/signalbroker"
	"github.com/urfave/cli/v3"
)

const (
	fileArg           = "file"
	stepFlag          = "step"
	delayFlag         = "delay"
	pollIntervalFlag  = "poll-interval"
	stepTimeoutFlag   = "step-timeout"
	interactiveFlag   = "interactive"
	jsonLogFlag       = "json-log"
	killOnAbandonFlag = "kill-on-abandon"
	cliExitStr        = ""
)

var (
	// ErrGetConfigFile is returned when the definition file cannot be fetched.
	ErrGetConfigFile = errors.New("failed to get experiment file")
	// ErrStartWorker is returned when the strategy worker cannot be started.
	ErrStartWorker = errors.New("failed to start strategy worker")
)

// killProcessTree is replaced in tests.
var killProcessTree = func(sup *lifecycle.Supervisor) bool {
	return sup.ForceKillProcessTree()
}

// RunCmd is the command that runs an experiment definition.
var RunCmd = newRunCmd()

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run an experiment definition",
		Description: `Run the loop, sweep or shmoo experiment described in a YAML or HCL file.

The first interrupt stops the experiment at the next suspension point, a second one
forces every worker down. With --interactive an operator console accepts commands
such as pause, resume, step, skip, retry, end and cancel while the experiment runs.

Definition file URLs use Hashicorp's go-getter syntax, which allows for fetching files from various sources.
See https://github.com/hashicorp/go-getter.

Exit codes: 1 configuration error, 2 failed or cancelled experiment, 3 abandoned worker.
`,
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:      fileArg,
				UsageText: "FILE",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     stepFlag,
				Usage:    "Wait for a step command after every iteration",
				OnlyOnce: true,
			},
			&cli.DurationFlag{
				Name:     delayFlag,
				Usage:    "Override the delay between iterations",
				OnlyOnce: true,
			},
			&cli.DurationFlag{
				Name:     pollIntervalFlag,
				Usage:    "Override how often a halted experiment checks for commands",
				OnlyOnce: true,
			},
			&cli.DurationFlag{
				Name:     stepTimeoutFlag,
				Usage:    "Continue when no step command arrives within this time, 0 waits forever",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     interactiveFlag,
				Aliases:  []string{"i"},
				Usage:    "Start the operator console",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     jsonLogFlag,
				Usage:    "Write logs as JSON",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     killOnAbandonFlag,
				Usage:    "Kill the whole process tree when a worker cannot be stopped",
				OnlyOnce: true,
			},
		},
		Action: actionFunc,
	}
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool(jsonLogFlag) {
		ctx = ctxlog.New(ctx, ctxlog.JSONLogger)
	}

	logger := ctxlog.Logger(ctx).With("command", cmd.Name)

	url := cmd.StringArg(fileArg)
	if url == "" {
		logger.Error("Please provide the experiment definition to run.")
		return cli.Exit(cliExitStr, exitConfig)
	}

	data, fileName, err := getURL(ctx, url)
	if err != nil {
		logger.Error(err.Error())
		return cli.Exit(cliExitStr, exitConfig)
	}

	def, err := experiment.Parse(fileName, data)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to read definition %s: %s", url, err.Error()))
		return cli.Exit(cliExitStr, exitConfig)
	}

	plan, err := def.Build(overrides(cmd))
	if err != nil {
		logger.Error(fmt.Sprintf("Invalid definition %s: %s", url, err.Error()))
		return cli.Exit(cliExitStr, exitConfig)
	}

	s := newSession(ctx, plan, plan.Executor)
	if err := s.start(); err != nil {
		logger.Error(err.Error())
		s.close(outcome{})

		return cli.Exit(cliExitStr, exitConfig)
	}

	sigCh := signalbroker.New(ctx)
	defer signalbroker.Stop(sigCh)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	go signalbroker.Watch(watchCtx, sigCh,
		func(sig os.Signal) { s.stop("signal " + sig.String()) },
		func(sig os.Signal) { s.emergencyStop("second signal " + sig.String()) },
	)

	consoleDone := make(chan struct{})

	if cmd.Bool(interactiveFlag) {
		c := console.New(ctx, s.reg, console.WithSupervisor(s.sup), console.WithOutput(cmd.Writer))

		go func() {
			defer close(consoleDone)

			if err := c.Run(watchCtx); err != nil {
				logger.Warn("operator console stopped", "error", err)
			}
		}()
	} else {
		close(consoleDone)
	}

	o := s.wait()
	stopWatch()
	<-consoleDone
	s.close(o)

	return report(ctxlog.New(ctx, logger), cmd.Writer, s.sup, o, cmd.Bool(killOnAbandonFlag))
}

// report prints the summary of a finished session and maps its outcome to an exit code.
// Abandoned workers trigger a process tree kill when killOnAbandon is set.
func report(ctx context.Context, w io.Writer, sup *lifecycle.Supervisor, o outcome, killOnAbandon bool) error {
	logger := ctxlog.Logger(ctx)

	if o.finished {
		if err := o.summary.Print(w); err != nil {
			logger.Error(fmt.Sprintf("Failed to write summary: %s", err.Error()))
		}
	}

	code := o.exitCode()

	switch code {
	case exitAbandoned:
		logger.Error("Workers could not be stopped", "abandoned", strings.Join(o.abandoned, ", "))

		if killOnAbandon && !killProcessTree(sup) {
			logger.Error("Process tree kill did not complete")
		}
	case exitFailed:
		logger.Error("Experiment did not pass. See the summary above for details.")
	}

	if code != exitOK {
		return cli.Exit(cliExitStr, code)
	}

	return nil
}

func overrides(cmd *cli.Command) experiment.Overrides {
	var o experiment.Overrides

	if cmd.IsSet(stepFlag) {
		v := cmd.Bool(stepFlag)
		o.StepMode = &v
	}

	if cmd.IsSet(delayFlag) {
		v := cmd.Duration(delayFlag)
		o.Delay = &v
	}

	if cmd.IsSet(pollIntervalFlag) {
		v := cmd.Duration(pollIntervalFlag)
		o.PollInterval = &v
	}

	if cmd.IsSet(stepTimeoutFlag) {
		v := cmd.Duration(stepTimeoutFlag)
		o.StepTimeout = &v
	}

	return o
}
