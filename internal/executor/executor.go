// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

// Executor runs one iteration with the given configuration.
type Executor interface {
	Run(ctx context.Context, cfg Config) Result
}

// ErrIterationPanic is returned when an iteration function panics.
// It is constructed with the value that caused the panic.
type ErrIterationPanic struct {
	v any
}

// Error implements the error interface for ErrIterationPanic.
func (e *ErrIterationPanic) Error() string {
	prefix := "iteration panic:"

	switch x := e.v.(type) {
	case string:
		return fmt.Sprintf("%s %s", prefix, x)
	case error:
		return fmt.Sprintf("%s %s", prefix, x.Error())
	default:
		return fmt.Sprintf("%s %v", prefix, x)
	}
}

// Unwrap returns the panic value if it was an error.
func (e *ErrIterationPanic) Unwrap() error {
	err, _ := e.v.(error)
	return err
}

// NewErrIterationPanic creates a new ErrIterationPanic with the given value.
func NewErrIterationPanic(v any) error {
	return &ErrIterationPanic{v: v}
}

// PanicResult converts a recovered panic value into an EXECUTION_FAIL result.
func PanicResult(cfg Config, v any) Result {
	return Result{
		Iteration: cfg.Iteration,
		Name:      cfg.Name,
		Status:    StatusExecutionFail,
		Timestamp: time.Now(),
		Config:    cfg,
		Err:       NewErrIterationPanic(v),
	}
}

// IterationFunc is the function run by FunctionExecutor.
type IterationFunc func(ctx context.Context, cfg Config) Result

var _ Executor = (*FunctionExecutor)(nil)

// FunctionExecutor runs a Go function as the iteration.
type FunctionExecutor struct {
	Func IterationFunc
}

// Run implements Executor.
// A panic in the function yields EXECUTION_FAIL. If ctx is done before the function
// returns, Run returns CANCELLED without waiting for it.
func (f *FunctionExecutor) Run(ctx context.Context, cfg Config) Result {
	logger := ctxlog.Logger(ctx).With("executor", "function", "iteration", cfg.Iteration)

	if f.Func == nil {
		logger.Debug("no function to run, returning pass")
		return Result{Iteration: cfg.Iteration, Name: cfg.Name, Status: StatusPass, Timestamp: time.Now(), Config: cfg}
	}

	resCh := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("iteration function panicked", "panic", r)
				resCh <- PanicResult(cfg, r)
			}
		}()

		resCh <- f.Func(ctx, cfg)
	}()

	select {
	case res := <-resCh:
		if res.Iteration == 0 {
			res.Iteration = cfg.Iteration
		}

		if res.Timestamp.IsZero() {
			res.Timestamp = time.Now()
		}

		res.Config = cfg

		return res
	case <-ctx.Done():
		logger.Debug("iteration context done", "error", ctx.Err())

		return Result{
			Iteration: cfg.Iteration,
			Name:      cfg.Name,
			Status:    StatusCancelled,
			Timestamp: time.Now(),
			Config:    cfg,
			Err:       errors.Join(ErrIterationCancelled, ctx.Err()),
		}
	}
}
