// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fastTimeouts() Timeouts {
	return Timeouts{
		Graceful:       50 * time.Millisecond,
		Force:          50 * time.Millisecond,
		Cleanup:        time.Second,
		EmergencyGrace: 30 * time.Millisecond,
		KillGrace:      200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, *progress.Recorder) {
	t.Helper()

	rec := &progress.Recorder{}
	opts = append([]Option{WithTimeouts(fastTimeouts()), WithReporter(rec)}, opts...)

	return New(context.Background(), opts...), rec
}

// cooperative exits as soon as it is asked to stop.
func cooperative(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// forceOnly ignores cancellation and exits only when force stopped.
func forceOnly(ctx context.Context) error {
	<-ForceStopRequested(ctx)
	return nil
}

// stubborn ignores every stop request until release is closed.
func stubborn(release <-chan struct{}) WorkFunc {
	return func(context.Context) error {
		<-release
		return nil
	}
}

func phasesOf(rec *progress.Recorder, name string) []string {
	var out []string

	for _, e := range rec.OfType(progress.EventCleanupProgress) {
		if e.Data["thread"] == name {
			out = append(out, e.Data["phase"].(string))
		}
	}

	return out
}

func TestSupervisor_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	var uiCalls atomic.Int32

	s, rec := newTestSupervisor(t, WithUICleanup(func() { uiCalls.Add(1) }))

	assert.Equal(t, "worker", s.Register(NewHandle(cooperative), "worker", map[string]any{"strategy": "loop"}))

	var calls []int

	require.True(t, s.AddCleanupCallback("worker", func() error {
		calls = append(calls, 1)
		return errors.New("flush failed")
	}))
	require.True(t, s.AddCleanupCallback("worker", func() error {
		calls = append(calls, 2)
		panic("boom")
	}))
	require.True(t, s.AddCleanupCallback("worker", func() error {
		calls = append(calls, 3)
		return nil
	}))
	assert.False(t, s.AddCleanupCallback("worker", nil))
	assert.False(t, s.AddCleanupCallback("missing", func() error { return nil }))

	require.True(t, s.Start("worker"))
	assert.True(t, s.IsThreadActive("worker"))

	info, ok := s.ThreadInfo("worker")
	require.True(t, ok)
	assert.Equal(t, StateRunning, info.State)
	assert.Equal(t, "loop", info.Metadata["strategy"])
	assert.False(t, info.StartTime.IsZero())

	require.True(t, s.RequestGracefulShutdown("worker", 0))
	s.Wait()

	assert.Equal(t, []int{1, 2, 3}, calls, "callbacks run in order even after failures")
	assert.Equal(t, int32(1), uiCalls.Load())

	phase, ok := s.CleanupPhase("worker")
	require.True(t, ok)
	assert.Equal(t, PhaseCompleted, phase)

	_, ok = s.ThreadInfo("worker")
	assert.False(t, ok, "finalized workers are no longer tracked")
	assert.False(t, s.IsThreadActive("worker"))
	assert.True(t, s.IsCleanupComplete())

	assert.Equal(t, []string{
		"initiated", "framework_stopping", "thread_joining", "ui_cleanup", "finalization", "completed",
	}, phasesOf(rec, "worker"))

	var percents []int
	for _, e := range rec.OfType(progress.EventCleanupProgress) {
		percents = append(percents, e.Data["percent"].(int))
	}

	assert.Equal(t, []int{10, 30, 50, 80, 90, 100}, percents)
	assert.Empty(t, rec.OfType(progress.EventThreadAbandoned))
}

func TestSupervisor_ForceEscalation(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, rec := newTestSupervisor(t)
	s.Register(NewHandle(forceOnly), "worker", nil)
	require.True(t, s.Start("worker"))

	start := time.Now()

	require.True(t, s.RequestGracefulShutdown("worker", 0))
	s.Wait()

	assert.GreaterOrEqual(t, time.Since(start), fastTimeouts().Graceful)
	assert.Equal(t, []string{
		"initiated", "framework_stopping", "thread_joining", "state_cleanup", "ui_cleanup", "finalization", "completed",
	}, phasesOf(rec, "worker"))
	assert.Empty(t, s.Abandoned())
	assert.True(t, s.IsCleanupComplete())
}

func TestSupervisor_Abandon(t *testing.T) {
	release := make(chan struct{})

	defer goleak.VerifyNone(t)
	defer close(release)

	s, rec := newTestSupervisor(t)
	s.Register(NewHandle(stubborn(release)), "stuck", nil)
	require.True(t, s.Start("stuck"))

	start := time.Now()

	require.True(t, s.RequestGracefulShutdown("stuck", 0))
	s.Wait()

	escalation := fastTimeouts().Graceful + fastTimeouts().Force
	assert.GreaterOrEqual(t, time.Since(start), escalation)

	info, ok := s.ThreadInfo("stuck")
	require.True(t, ok, "abandoned workers stay visible")
	assert.Equal(t, StateAbandoned, info.State)
	assert.True(t, info.Alive)
	assert.False(t, info.ForceStopTime.IsZero())
	assert.False(t, info.CleanupStartTime.IsZero())
	assert.GreaterOrEqual(t, info.ForceStopTime.Sub(info.CleanupStartTime), fastTimeouts().Graceful)

	phase, _ := s.CleanupPhase("stuck")
	assert.Equal(t, PhaseFailed, phase)
	assert.Equal(t, []string{"stuck"}, s.Abandoned())
	assert.True(t, s.IsCleanupComplete(), "abandoned counts as complete")
	assert.True(t, s.IsThreadActive("stuck"))

	abandoned := rec.OfType(progress.EventThreadAbandoned)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "stuck", abandoned[0].Data["thread"])
	assert.GreaterOrEqual(t, abandoned[0].Timestamp.Sub(start), escalation, "abandoned only after both timeouts")

	var buf bytes.Buffer
	require.NoError(t, s.PrintThreadStatus(&buf))
	assert.Contains(t, buf.String(), "stuck")
	assert.Contains(t, buf.String(), "abandoned")
}

func TestSupervisor_PhasesNeverMoveBackwards(t *testing.T) {
	s, _ := newTestSupervisor(t)

	assert.True(t, s.setPhaseLocked("w", PhaseThreadJoining, ""))
	assert.False(t, s.setPhaseLocked("w", PhaseFrameworkStopping, ""))
	assert.False(t, s.setPhaseLocked("w", PhaseThreadJoining, ""))
	assert.True(t, s.setPhaseLocked("w", PhaseCompleted, ""))
	assert.False(t, s.setPhaseLocked("w", PhaseFailed, ""), "terminal phases are final")

	phase, ok := s.CleanupPhase("w")
	require.True(t, ok)
	assert.Equal(t, PhaseCompleted, phase)
	assert.Equal(t, 100, s.progress["w"].Percent)
}

func TestSupervisor_StartErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)

	assert.False(t, s.Start("missing"))

	s.Register(nil, "empty", nil)
	assert.False(t, s.Start("empty"))

	info, ok := s.ThreadInfo("empty")
	require.True(t, ok)
	assert.Equal(t, StateError, info.State)

	s.Register(NewHandle(cooperative), "worker", nil)
	require.True(t, s.Start("worker"))
	assert.False(t, s.Start("worker"), "a running worker cannot be started again")

	assert.True(t, s.CleanupAll(time.Second))
	s.Wait()
	assert.Empty(t, s.ThreadStatus())
}

func TestSupervisor_RequestGracefulShutdownNotRunning(t *testing.T) {
	s, _ := newTestSupervisor(t)

	assert.False(t, s.RequestGracefulShutdown("missing", 0))

	s.Register(NewHandle(cooperative), "idle", nil)
	assert.True(t, s.RequestGracefulShutdown("idle", 0))

	_, ok := s.CleanupPhase("idle")
	assert.False(t, ok, "an idle worker has nothing to clean up")
}

func TestSupervisor_WorkerExitsOnItsOwn(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)
	h := NewHandle(func(context.Context) error { return errors.New("sensor offline") })
	s.Register(h, "short", nil)
	require.True(t, s.Start("short"))

	<-h.Done()
	assert.EqualError(t, h.Err(), "sensor offline")
	assert.False(t, s.IsThreadActive("short"))
	assert.False(t, s.IsCleanupComplete(), "a running record still needs a shutdown")

	require.True(t, s.RequestGracefulShutdown("short", 0))
	s.Wait()
	assert.True(t, s.IsCleanupComplete())
}

func TestSupervisor_EmergencyShutdownAll(t *testing.T) {
	release := make(chan struct{})

	defer goleak.VerifyNone(t)
	defer close(release)

	s, rec := newTestSupervisor(t)

	s.Register(NewHandle(forceOnly), "obedient", nil)
	s.Register(NewHandle(stubborn(release)), "stuck", nil)
	require.True(t, s.Start("obedient"))
	require.True(t, s.Start("stuck"))

	assert.True(t, s.EmergencyShutdownAll())

	assert.Empty(t, s.ThreadStatus(), "tracking is cleared")
	assert.Equal(t, []string{"stuck"}, s.Abandoned())

	phase, _ := s.CleanupPhase("obedient")
	assert.Equal(t, PhaseCompleted, phase)

	phase, _ = s.CleanupPhase("stuck")
	assert.Equal(t, PhaseFailed, phase)
	assert.Len(t, rec.OfType(progress.EventThreadAbandoned), 1)

	assert.True(t, s.EmergencyShutdownAll(), "nothing left to stop")
}

func TestSupervisor_CleanupAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)

	for _, name := range []string{"a", "b", "c"} {
		s.Register(NewHandle(cooperative), name, nil)
		require.True(t, s.Start(name))
	}

	s.Register(NewHandle(cooperative), "never-started", nil)

	assert.True(t, s.CleanupAll(0))
	s.Wait()
	assert.Empty(t, s.ThreadStatus())
}

func TestSupervisor_WaitForCleanupCompleteTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)
	s.Register(NewHandle(cooperative), "worker", nil)
	require.True(t, s.Start("worker"))

	assert.False(t, s.WaitForCleanupComplete(20*time.Millisecond))

	require.True(t, s.RequestGracefulShutdown("worker", 0))
	assert.True(t, s.WaitForCleanupComplete(time.Second))
	s.Wait()
}

func TestSupervisor_UICleanupPanicIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t, WithUICleanup(func() { panic("terminal gone") }))
	s.Register(NewHandle(cooperative), "worker", nil)
	require.True(t, s.Start("worker"))
	require.True(t, s.RequestGracefulShutdown("worker", 0))
	s.Wait()

	phase, _ := s.CleanupPhase("worker")
	assert.Equal(t, PhaseCompleted, phase)
}

func TestSupervisor_ReRegisterResetsPhase(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)
	s.Register(NewHandle(cooperative), "worker", nil)
	require.True(t, s.Start("worker"))
	require.True(t, s.RequestGracefulShutdown("worker", 0))
	s.Wait()

	s.Register(NewHandle(cooperative), "worker", nil)
	_, ok := s.CleanupPhase("worker")
	assert.False(t, ok)

	info, ok := s.ThreadInfo("worker")
	require.True(t, ok)
	assert.Equal(t, StateIdle, info.State)
}

func TestSupervisor_PrintThreadStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestSupervisor(t)

	var buf bytes.Buffer
	require.NoError(t, s.PrintThreadStatus(&buf))
	assert.Contains(t, buf.String(), "no supervised workers")

	s.Register(NewHandle(cooperative), "strategy", nil)
	require.True(t, s.Start("strategy"))

	buf.Reset()
	require.NoError(t, s.PrintThreadStatus(&buf))
	out := buf.String()
	assert.Contains(t, out, "THREAD")
	assert.Contains(t, out, "strategy")
	assert.Contains(t, out, "running")

	assert.True(t, s.CleanupAll(time.Second))
	s.Wait()
}

func TestWithTimeouts_ZeroKeepsDefault(t *testing.T) {
	s := New(context.Background(), WithTimeouts(Timeouts{Graceful: time.Second}))
	def := DefaultTimeouts()

	assert.Equal(t, time.Second, s.Timeouts().Graceful)
	assert.Equal(t, def.Force, s.Timeouts().Force)
	assert.Equal(t, def.Cleanup, s.Timeouts().Cleanup)
	assert.Equal(t, def.KillGrace, s.Timeouts().KillGrace)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "abandoned", StateAbandoned.String())
	assert.Equal(t, "unknown", ThreadState(99).String())
	assert.Equal(t, "thread_joining", PhaseThreadJoining.String())
	assert.True(t, PhaseFailed.Terminal())
	assert.False(t, PhaseFinalization.Terminal())
}
