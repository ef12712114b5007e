// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestFunctionExecutor_Pass(t *testing.T) {
	defer goleak.VerifyNone(t)

	exec := &FunctionExecutor{Func: func(_ context.Context, cfg Config) Result {
		return Result{Status: StatusPass, Scratchpad: "ok " + cfg.Name}
	}}

	res := exec.Run(context.Background(), Config{Name: "loop", Iteration: 4})
	assert.Equal(t, StatusPass, res.Status)
	assert.Equal(t, 4, res.Iteration)
	assert.Equal(t, "ok loop", res.Scratchpad)
	assert.Equal(t, "loop", res.Config.Name)
	assert.False(t, res.Timestamp.IsZero())
}

func TestFunctionExecutor_NilFunc(t *testing.T) {
	res := (&FunctionExecutor{}).Run(context.Background(), Config{Iteration: 1})
	assert.Equal(t, StatusPass, res.Status)
	assert.NoError(t, res.Err)
}

func TestFunctionExecutor_Panic(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "boom", want: "iteration panic: boom"},
		{name: "error", value: errors.New("bad bank"), want: "iteration panic: bad bank"},
		{name: "other", value: 42, want: "iteration panic: 42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &FunctionExecutor{Func: func(context.Context, Config) Result { panic(tt.value) }}

			res := exec.Run(context.Background(), Config{Iteration: 9})
			assert.Equal(t, StatusExecutionFail, res.Status)
			assert.Equal(t, 9, res.Iteration)

			var pErr *ErrIterationPanic
			assert.ErrorAs(t, res.Err, &pErr)
			assert.EqualError(t, res.Err, tt.want)
		})
	}
}

func TestFunctionExecutor_ContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	finished := make(chan struct{})

	exec := &FunctionExecutor{Func: func(context.Context, Config) Result {
		defer close(finished)
		<-release

		return Result{Status: StatusPass}
	}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := exec.Run(ctx, Config{Iteration: 1})
	assert.Equal(t, StatusCancelled, res.Status)
	assert.ErrorIs(t, res.Err, ErrIterationCancelled)
	assert.ErrorIs(t, res.Err, context.Canceled)

	close(release)
	<-finished
}

func TestPanicResult(t *testing.T) {
	res := PanicResult(Config{Name: "x", Iteration: 2}, "oops")
	assert.Equal(t, StatusExecutionFail, res.Status)
	assert.Equal(t, 2, res.Iteration)
	assert.EqualError(t, res.Err, "iteration panic: oops")
}
