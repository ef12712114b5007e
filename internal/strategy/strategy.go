// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/executor"
)

// DefaultDelay is the settle time between iterations.
const DefaultDelay = 10 * time.Second

// Strategy runs an experiment.
type Strategy interface {
	// Name is the strategy type, e.g. "loops".
	Name() string
	// Planned returns the number of iterations the strategy will run.
	Planned() int
	// Run drives every iteration through exec. base is the initial test configuration.
	Run(ctx context.Context, exec executor.Executor, ctl Controller, base executor.Config) Summary
}

// Option configures a strategy.
type Option func(*options)

type options struct {
	delay time.Duration
}

// WithDelay sets the settle time between iterations. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			d = 0
		}

		o.delay = d
	}
}

func buildOptions(opts []Option) options {
	o := options{delay: DefaultDelay}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

var (
	_ Strategy = (*Loop)(nil)
	_ Strategy = (*Sweep)(nil)
	_ Strategy = (*Shmoo)(nil)
)

// Loop runs the same configuration count times.
type Loop struct {
	count int
	opts  options
}

// NewLoop creates a loop strategy.
func NewLoop(count int, opts ...Option) (*Loop, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	return &Loop{count: count, opts: buildOptions(opts)}, nil
}

// Name implements Strategy.
func (l *Loop) Name() string { return "loops" }

// Planned implements Strategy.
func (l *Loop) Planned() int { return l.count }

// Run implements Strategy.
func (l *Loop) Run(ctx context.Context, exec executor.Executor, ctl Controller, base executor.Config) Summary {
	points := make([]point, l.count)
	for i := range points {
		points[i] = point{label: fmt.Sprintf("loop %d/%d", i+1, l.count)}
	}

	return drive(ctx, l.Name(), points, exec, ctl, base, l.opts)
}

// Sweep runs one iteration per value of an axis.
type Sweep struct {
	axis   Axis
	values []float64
	opts   options
}

// NewSweep creates a sweep strategy.
func NewSweep(axis Axis, opts ...Option) (*Sweep, error) {
	values, err := axis.Values()
	if err != nil {
		return nil, err
	}

	return &Sweep{axis: axis, values: values, opts: buildOptions(opts)}, nil
}

// Name implements Strategy.
func (s *Sweep) Name() string { return "sweep" }

// Planned implements Strategy.
func (s *Sweep) Planned() int { return len(s.values) }

// Values returns the swept values.
func (s *Sweep) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// Run implements Strategy.
func (s *Sweep) Run(ctx context.Context, exec executor.Executor, ctl Controller, base executor.Config) Summary {
	points := make([]point, len(s.values))
	for i, v := range s.values {
		points[i] = point{
			label:       fmt.Sprintf("%s=%s", s.axis, s.axis.format(v)),
			assignments: []assignment{{axis: s.axis, value: v}},
		}
	}

	return drive(ctx, s.Name(), points, exec, ctl, base, s.opts)
}

// Shmoo runs one iteration per point of a two dimensional grid. Y is the outer axis.
type Shmoo struct {
	x, y    Axis
	xValues []float64
	yValues []float64
	opts    options
}

// NewShmoo creates a shmoo strategy.
func NewShmoo(x, y Axis, opts ...Option) (*Shmoo, error) {
	xValues, err := x.Values()
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}

	yValues, err := y.Values()
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	return &Shmoo{x: x, y: y, xValues: xValues, yValues: yValues, opts: buildOptions(opts)}, nil
}

// Name implements Strategy.
func (s *Shmoo) Name() string { return "shmoo" }

// Planned implements Strategy.
func (s *Shmoo) Planned() int { return len(s.xValues) * len(s.yValues) }

// Run implements Strategy.
func (s *Shmoo) Run(ctx context.Context, exec executor.Executor, ctl Controller, base executor.Config) Summary {
	points := make([]point, 0, s.Planned())

	for _, yv := range s.yValues {
		for _, xv := range s.xValues {
			points = append(points, point{
				label: fmt.Sprintf("%s=%s,%s=%s", s.x, s.x.format(xv), s.y, s.y.format(yv)),
				assignments: []assignment{
					{axis: s.x, value: xv},
					{axis: s.y, value: yv},
				},
			})
		}
	}

	return drive(ctx, s.Name(), points, exec, ctl, base, s.opts)
}
