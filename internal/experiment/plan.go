// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package experiment

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/matt-FFFFFF/hwloop/internal/lifecycle"
	"github.com/matt-FFFFFF/hwloop/internal/strategy"
)

var (
	// ErrInvalidDefinition wraps every validation problem of a definition.
	ErrInvalidDefinition = errors.New("invalid experiment definition")
	// ErrMissingName is returned when the definition has no name.
	ErrMissingName = errors.New("name is required")
	// ErrMissingStrategy is returned when the strategy block is absent.
	ErrMissingStrategy = errors.New("strategy block is required")
	// ErrUnknownStrategy is returned for a strategy type that is not loops, sweep or shmoo.
	ErrUnknownStrategy = errors.New("unknown strategy type")
	// ErrMissingSweep is returned when a sweep or shmoo strategy has no axis.
	ErrMissingSweep = errors.New("sweep axis is required")
	// ErrMissingCommand is returned when the executor has no command.
	ErrMissingCommand = errors.New("executor command is required")
	// ErrInvalidDuration is returned for a duration that cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Overrides replace definition values. Nil fields keep the definition value.
type Overrides struct {
	Delay        *time.Duration
	StepMode     *bool
	PollInterval *time.Duration
	StepTimeout  *time.Duration
}

// Plan is a validated definition ready to run.
type Plan struct {
	Name         string
	Strategy     strategy.Strategy
	Executor     *executor.ScriptExecutor
	Config       executor.Config
	StepMode     bool
	PollInterval time.Duration
	StepTimeout  time.Duration
	Timeouts     lifecycle.Timeouts
}

// Validate reports every problem in the definition at once.
func (d *Definition) Validate() error {
	_, err := d.Build(Overrides{})
	return err
}

// Build validates the definition and constructs the strategy and executor.
func (d *Definition) Build(o Overrides) (*Plan, error) {
	var result *multierror.Error

	if d.Name == "" {
		result = multierror.Append(result, ErrMissingName)
	}

	dur := func(field, s string) time.Duration {
		if s == "" {
			return 0
		}

		v, err := time.ParseDuration(s)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: %s: %q", ErrInvalidDuration, field, s))
			return 0
		}

		return v
	}

	plan := &Plan{
		Name:         d.Name,
		PollInterval: strategy.DefaultPollInterval,
		Config: executor.Config{
			Name:       d.Name,
			TestNumber: d.TestNumber,
		},
	}

	delay := strategy.DefaultDelay

	if d.Strategy != nil && d.Strategy.Delay != "" {
		delay = dur("strategy.delay", d.Strategy.Delay)
	}

	if o.Delay != nil {
		delay = *o.Delay
	}

	if t := d.Test; t != nil {
		plan.Config.FreqIA = t.FreqIA
		plan.Config.FreqCFC = t.FreqCFC
		plan.Config.VoltIA = t.VoltIA
		plan.Config.VoltCFC = t.VoltCFC
		plan.Config.Reset = t.Reset
		plan.Config.ResetOnPass = t.ResetOnPass
	}

	if e := d.Executor; e == nil || e.Command == "" {
		result = multierror.Append(result, ErrMissingCommand)
	} else {
		plan.Executor = &executor.ScriptExecutor{
			Path:       e.Command,
			Args:       e.Args,
			Env:        e.Env,
			Dir:        e.Dir,
			PassString: e.PassString,
			FailString: e.FailString,
			Timeout:    dur("executor.timeout", e.Timeout),
			LogDir:     e.LogDir,
		}
	}

	if c := d.Control; c != nil {
		plan.StepMode = c.StepMode

		if c.PollInterval != "" {
			plan.PollInterval = dur("control.poll_interval", c.PollInterval)
		}

		plan.StepTimeout = dur("control.step_timeout", c.StepTimeout)
	}

	if o.StepMode != nil {
		plan.StepMode = *o.StepMode
	}

	if o.PollInterval != nil {
		plan.PollInterval = *o.PollInterval
	}

	if o.StepTimeout != nil {
		plan.StepTimeout = *o.StepTimeout
	}

	if s := d.Supervisor; s != nil {
		plan.Timeouts = lifecycle.Timeouts{
			Graceful: dur("supervisor.graceful_timeout", s.GracefulTimeout),
			Force:    dur("supervisor.force_timeout", s.ForceTimeout),
			Cleanup:  dur("supervisor.cleanup_timeout", s.CleanupTimeout),
		}
	}

	strat, err := buildStrategy(d.Strategy, strategy.WithDelay(delay))
	if err != nil {
		result = multierror.Append(result, err)
	}

	plan.Strategy = strat

	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.Join(ErrInvalidDefinition, err)
	}

	return plan, nil
}

func buildStrategy(s *StrategyBlock, opt strategy.Option) (strategy.Strategy, error) {
	if s == nil {
		return nil, ErrMissingStrategy
	}

	switch s.Type {
	case "loops":
		return strategy.NewLoop(s.Loops, opt)
	case "sweep":
		axis, err := s.Sweep.axis("strategy.sweep")
		if err != nil {
			return nil, err
		}

		return strategy.NewSweep(axis, opt)
	case "shmoo":
		if s.Shmoo == nil {
			return nil, fmt.Errorf("%w: strategy.shmoo", ErrMissingSweep)
		}

		x, xErr := s.Shmoo.X.axis("strategy.shmoo.x")
		y, yErr := s.Shmoo.Y.axis("strategy.shmoo.y")

		if err := errors.Join(xErr, yErr); err != nil {
			return nil, err
		}

		return strategy.NewShmoo(x, y, opt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s.Type)
	}
}

func (b *SweepBlock) axis(field string) (strategy.Axis, error) {
	if b == nil {
		return strategy.Axis{}, fmt.Errorf("%w: %s", ErrMissingSweep, field)
	}

	p, pErr := executor.ParseParameter(b.Type)
	d, dErr := executor.ParseDomain(b.Domain)

	if err := errors.Join(pErr, dErr); err != nil {
		return strategy.Axis{}, fmt.Errorf("%s: %w", field, err)
	}

	return strategy.Axis{Parameter: p, Domain: d, Start: b.Start, End: b.End, Step: b.Step}, nil
}
