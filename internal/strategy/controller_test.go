// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/commandregistry"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/matt-FFFFFF/hwloop/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWithPollInterval(t *testing.T) {
	reg := commandregistry.New(context.Background())

	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{name: "default", in: 0, want: DefaultPollInterval},
		{name: "negative", in: -time.Second, want: DefaultPollInterval},
		{name: "capped", in: 5 * time.Second, want: MaxPollInterval},
		{name: "kept", in: 250 * time.Millisecond, want: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommandController(reg, nil, WithPollInterval(tt.in))
			assert.Equal(t, tt.want, c.pollInterval)
		})
	}
}

func TestWaitForContinueOrCancel_NotPaused(t *testing.T) {
	h := newHarness()
	assert.True(t, h.ctl.WaitForContinueOrCancel(context.Background(), 1, 3))
	assert.Empty(t, h.rec.OfType(progress.EventExecutionHalted))

	require.True(t, h.reg.Cancel(""))
	assert.False(t, h.ctl.WaitForContinueOrCancel(context.Background(), 1, 3))
}

func TestWaitForContinueOrCancel_StaleResumeDoesNotMaskPause(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness()
	require.True(t, h.reg.Resume("early"))
	require.True(t, h.reg.Pause("late"))
	require.False(t, h.reg.IsPaused())

	done := make(chan bool, 1)

	go func() {
		done <- h.ctl.WaitForContinueOrCancel(context.Background(), 2, 5)
	}()

	require.Eventually(t, func() bool { return h.reg.State().WaitingForCommand }, 2*time.Second, time.Millisecond)
	require.True(t, h.reg.Resume("now"))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not release")
	}

	assert.False(t, h.reg.Has(commandregistry.Pause))
	assert.False(t, h.reg.Has(commandregistry.Resume))

	for _, rec := range h.reg.History(0) {
		if rec.Kind == commandregistry.Resume {
			assert.True(t, rec.Acknowledged, "resume %s", rec.ID)
		}
	}

	rl, ok := h.reg.Lifecycle(commandregistry.Resume)
	require.True(t, ok)
	assert.False(t, rl.AcknowledgedAt.IsZero())
}

func TestWaitForContinueOrCancel_ContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness()
	require.True(t, h.reg.Pause(""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)

	go func() {
		done <- h.ctl.WaitForContinueOrCancel(ctx, 1, 2)
	}()

	require.Eventually(t, func() bool { return h.reg.State().WaitingForCommand }, 2*time.Second, time.Millisecond)
	cancel()

	assert.False(t, <-done)
	assert.False(t, h.reg.State().WaitingForCommand)
}

func TestWaitForStepCommand_ConsumesEarlyContinue(t *testing.T) {
	h := newHarness()
	require.True(t, h.reg.EnableStepMode())
	require.True(t, h.reg.StepContinue())

	assert.True(t, h.ctl.WaitForStepCommand(context.Background(), 1, 2, executor.Result{Status: executor.StatusPass}))
	assert.False(t, h.reg.Has(commandregistry.StepContinue))
	assert.False(t, h.reg.State().WaitingForStep)

	waiting := h.rec.OfType(progress.EventStepWaiting)
	require.Len(t, waiting, 1)
	assert.Equal(t, "PASS", waiting[0].Data["last_status"])
}

func TestConsume(t *testing.T) {
	h := newHarness()

	assert.False(t, h.ctl.ConsumeSkip())
	require.True(t, h.reg.SkipCurrentTest(""))
	assert.True(t, h.ctl.ConsumeSkip())
	assert.False(t, h.ctl.ConsumeSkip())

	require.True(t, h.reg.EmergencyStop("smoke"))
	h.ctl.AcknowledgeStop("stopped")
	assert.False(t, h.reg.Has(commandregistry.EmergencyStop))
}

func TestSleep(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness()
	assert.True(t, h.ctl.Sleep(context.Background(), 0))
	assert.True(t, h.ctl.Sleep(context.Background(), 5*time.Millisecond))

	require.True(t, h.reg.EndExperiment(""))
	assert.False(t, h.ctl.Sleep(context.Background(), time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, newHarness().ctl.Sleep(ctx, time.Minute))
}

type panickingReporter struct{}

func (panickingReporter) Report(progress.Event) { panic("display gone") }
func (panickingReporter) Close()                {}

func TestSendStatusUpdate_RecoversReporterPanic(t *testing.T) {
	reg := commandregistry.New(context.Background())
	c := NewCommandController(reg, panickingReporter{})

	assert.NotPanics(t, func() {
		c.SendStatusUpdate(context.Background(), progress.EventStrategyProgress, "x", nil)
	})
}

func TestBeginFinish(t *testing.T) {
	h := newHarness()

	h.ctl.Begin("vmin_search", 12)
	state := h.reg.State()
	assert.True(t, state.ExecutionActive)
	assert.Equal(t, "vmin_search", state.CurrentExperiment)
	assert.Equal(t, 12, state.TotalIterations)

	h.ctl.SetIteration(4)
	assert.Equal(t, 4, h.reg.State().CurrentIteration)

	h.ctl.Finish()
	assert.False(t, h.reg.State().ExecutionActive)
}
