// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/commandregistry"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/lifecycle"
	"github.com/peterh/liner"
)

const (
	prompt              = "hwloop> "
	defaultHistoryLines = 10
	operatorReason      = "requested by operator"
)

var (
	// ErrUnknownCommand is returned for a line that names no console command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a command needs an argument that was not given.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidArgument is returned when an argument cannot be parsed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRejected is returned when the registry does not accept the command.
	ErrRejected = errors.New("command rejected")
	// ErrQuit is returned by Execute for the quit command.
	ErrQuit = errors.New("quit")
)

// prompter is the part of liner.State the console uses.
type prompter interface {
	Prompt(p string) (string, error)
	AppendHistory(item string)
	Close() error
}

var newPrompter = func() prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	return line
}

type command struct {
	usage string
	help  string
	run   func(c *Console, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"cancel": {usage: "cancel [reason]", help: "stop at the next suspension point", run: (*Console).cancel},
		"end":    {usage: "end [reason]", help: "stop after the current iteration", run: (*Console).end},
		"pause":  {usage: "pause [reason]", help: "halt after the current iteration", run: (*Console).pause},
		"resume": {usage: "resume", help: "release a paused run", run: (*Console).resume},
		"step":   {usage: "step [on|off]", help: "continue one iteration, or toggle step mode", run: (*Console).step},
		"skip":   {usage: "skip [reason]", help: "skip the next iteration", run: (*Console).skip},
		"retry":  {usage: "retry [reason]", help: "run the current iteration once more", run: (*Console).retry},
		"estop": {
			usage: "estop [reason]", help: "emergency stop, force every worker down", run: (*Console).estop,
		},
		"loglevel": {usage: "loglevel <level>", help: "change the log level", run: (*Console).logLevel},
		"status":   {usage: "status", help: "show the execution state", run: (*Console).status},
		"threads":  {usage: "threads", help: "show supervised workers", run: (*Console).threads},
		"history":  {usage: "history [n]", help: "show the last n commands", run: (*Console).history},
		"help":     {usage: "help", help: "show this help", run: (*Console).help},
		"quit":     {usage: "quit", help: "close the console, the run continues", run: (*Console).quit},
	}
	commands["exit"] = commands["quit"]
}

// Console dispatches operator input to the command registry.
type Console struct {
	ctx context.Context
	reg *commandregistry.Registry
	sup *lifecycle.Supervisor
	out io.Writer
}

// Option configures a Console.
type Option func(*Console)

// WithSupervisor enables the threads and estop commands against sup.
func WithSupervisor(sup *lifecycle.Supervisor) Option {
	return func(c *Console) {
		c.sup = sup
	}
}

// WithOutput sets where command output is written. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Console) {
		c.out = w
	}
}

// New creates a console that issues commands on reg.
func New(ctx context.Context, reg *commandregistry.Registry, opts ...Option) *Console {
	c := &Console{
		ctx: ctx,
		reg: reg,
		out: os.Stdout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute runs one line of input. Blank lines are ignored.
func (c *Console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("%w: %q, type help for a list", ErrUnknownCommand, fields[0])
	}

	return cmd.run(c, fields[1:])
}

type input struct {
	line string
	err  error
}

// Run reads lines from the terminal until quit, Ctrl+C, Ctrl+D or ctx is done.
// The terminal is restored before Run returns, also when ctx ends while a prompt is open.
func (c *Console) Run(ctx context.Context) error {
	line := newPrompter()

	defer func() {
		_ = line.Close()
	}()

	_, _ = fmt.Fprintln(c.out, "Operator console ready, type help for commands.")

	read := make(chan input, 1)

	for ctx.Err() == nil {
		go func() {
			text, err := line.Prompt(prompt)
			read <- input{line: text, err: err}
		}()

		var in input

		select {
		case <-ctx.Done():
			return nil
		case in = <-read:
		}

		if in.err != nil {
			if errors.Is(in.err, liner.ErrPromptAborted) || errors.Is(in.err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading console input: %w", in.err)
		}

		if strings.TrimSpace(in.line) == "" {
			continue
		}

		line.AppendHistory(in.line)

		err := c.Execute(in.line)

		switch {
		case errors.Is(err, ErrQuit):
			return nil
		case err != nil:
			_, _ = fmt.Fprintln(c.out, "error:", err)
		}
	}

	return nil
}

func complete(line string) []string {
	var out []string

	for name := range commands {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}

	sort.Strings(out)

	return out
}

func reason(args []string) string {
	if len(args) == 0 {
		return operatorReason
	}

	return strings.Join(args, " ")
}

func (c *Console) accepted(ok bool, kind commandregistry.Kind) error {
	if !ok {
		return fmt.Errorf("%w: %s", ErrRejected, kind)
	}

	ctxlog.Info(c.ctx, "operator command", "command", kind.String())

	_, err := fmt.Fprintf(c.out, "%s issued\n", kind)

	return err
}

func (c *Console) cancel(args []string) error {
	return c.accepted(c.reg.Cancel(reason(args)), commandregistry.Cancel)
}

func (c *Console) end(args []string) error {
	return c.accepted(c.reg.EndExperiment(reason(args)), commandregistry.EndExperiment)
}

func (c *Console) pause(args []string) error {
	return c.accepted(c.reg.Pause(reason(args)), commandregistry.Pause)
}

func (c *Console) resume(args []string) error {
	return c.accepted(c.reg.Resume(reason(args)), commandregistry.Resume)
}

func (c *Console) step(args []string) error {
	if len(args) == 0 {
		return c.accepted(c.reg.StepContinue(), commandregistry.StepContinue)
	}

	switch strings.ToLower(args[0]) {
	case "on":
		return c.accepted(c.reg.EnableStepMode(), commandregistry.EnableStepMode)
	case "off":
		return c.accepted(c.reg.DisableStepMode(), commandregistry.DisableStepMode)
	default:
		return fmt.Errorf("%w: step %q, expected on or off", ErrInvalidArgument, args[0])
	}
}

func (c *Console) skip(args []string) error {
	return c.accepted(c.reg.SkipCurrentTest(reason(args)), commandregistry.SkipCurrentTest)
}

func (c *Console) retry(args []string) error {
	return c.accepted(c.reg.RetryCurrentTest(reason(args)), commandregistry.RetryCurrentTest)
}

func (c *Console) estop(args []string) error {
	if err := c.accepted(c.reg.EmergencyStop(reason(args)), commandregistry.EmergencyStop); err != nil {
		return err
	}

	if c.sup == nil {
		return nil
	}

	c.sup.EmergencyShutdownAll()

	if abandoned := c.sup.Abandoned(); len(abandoned) > 0 {
		_, err := fmt.Fprintf(c.out, "abandoned workers: %s\n", strings.Join(abandoned, ", "))
		return err
	}

	return nil
}

func (c *Console) logLevel(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: loglevel needs a level", ErrMissingArgument)
	}

	if _, err := ctxlog.ParseLevel(args[0]); err != nil {
		return errors.Join(ErrInvalidArgument, err)
	}

	return c.accepted(c.reg.ChangeLogLevel(args[0]), commandregistry.ChangeLogLevel)
}

func (c *Console) status(_ []string) error {
	snap := c.reg.Snapshot()
	s := snap.State

	active := make([]string, 0, len(snap.Active))
	for _, k := range snap.Active {
		active = append(active, k.String())
	}

	heartbeat := time.Since(snap.LastHeartbeat).Truncate(time.Millisecond)

	_, err := fmt.Fprintf(c.out,
		"experiment: %s\nactive: %t\niteration: %d/%d\nstep mode: %t\nwaiting for step: %t\n"+
			"waiting for command: %t\nlog level: %s\nactive commands: %s\nlast heartbeat: %s ago\n",
		valueOr(s.CurrentExperiment, "-"), s.ExecutionActive, s.CurrentIteration, s.TotalIterations,
		s.StepModeEnabled, s.WaitingForStep, s.WaitingForCommand, s.LogLevel,
		valueOr(strings.Join(active, ", "), "none"), heartbeat)

	return err
}

func (c *Console) threads(_ []string) error {
	if c.sup == nil {
		_, err := fmt.Fprintln(c.out, "no supervisor attached")
		return err
	}

	return c.sup.PrintThreadStatus(c.out)
}

func (c *Console) history(args []string) error {
	n := defaultHistoryLines

	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("%w: history %q", ErrInvalidArgument, args[0])
		}

		n = v
	}

	records := c.reg.History(n)
	if len(records) == 0 {
		_, err := fmt.Fprintln(c.out, "no commands issued")
		return err
	}

	for _, r := range records {
		state := "pending"

		switch {
		case r.Acknowledged:
			state = "acknowledged"
		case r.ProcessingStarted:
			state = "processing"
		}

		if _, err := fmt.Fprintf(c.out, "%s  %-20s %s\n", r.IssuedAt.Format("15:04:05.000"), r.Kind, state); err != nil {
			return err
		}
	}

	return nil
}

func (c *Console) help(_ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		if name != "exit" {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		if _, err := fmt.Fprintf(c.out, "  %-18s %s\n", cmd.usage, cmd.help); err != nil {
			return err
		}
	}

	return nil
}

func (c *Console) quit(_ []string) error {
	return ErrQuit
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}
