// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/commandregistry"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/matt-FFFFFF/hwloop/internal/progress"
)

const (
	// DefaultPollInterval is how often the gates check for commands.
	DefaultPollInterval = 500 * time.Millisecond
	// MaxPollInterval caps the poll interval so commands are noticed within a second.
	MaxPollInterval = time.Second

	progressSource = "strategy"
)

// Controller is the view of the control surface a strategy runs against.
type Controller interface {
	IsEnded() bool
	IsCancelled() bool
	IsStepModeEnabled() bool

	// Begin marks an execution of total iterations as active.
	Begin(experiment string, total int)
	// SetIteration records the iteration about to run.
	SetIteration(i int)
	// Finish marks the execution inactive.
	Finish()

	// ConsumeSkip acknowledges a pending skip request and reports whether there was one.
	ConsumeSkip() bool
	// ConsumeRetry acknowledges a pending retry request and reports whether there was one.
	ConsumeRetry() bool
	// AcknowledgeEnd completes a pending end request.
	AcknowledgeEnd(response string)
	// AcknowledgeStop completes pending cancel and emergency stop requests.
	AcknowledgeStop(response string)

	// WaitForContinueOrCancel blocks while the execution is paused. It returns false when
	// the strategy must stop.
	WaitForContinueOrCancel(ctx context.Context, current, total int) bool
	// WaitForStepCommand blocks until a step, end or cancel command arrives. It returns
	// false when the strategy must stop.
	WaitForStepCommand(ctx context.Context, current, total int, last executor.Result) bool
	// Sleep waits for d or until a stop command arrives and reports whether the full
	// duration elapsed.
	Sleep(ctx context.Context, d time.Duration) bool

	// SendStatusUpdate reports an event. It never panics.
	SendStatusUpdate(ctx context.Context, t progress.EventType, message string, data map[string]any)
}

var _ Controller = (*CommandController)(nil)

// CommandController implements Controller on top of a command registry.
type CommandController struct {
	reg          *commandregistry.Registry
	reporter     progress.Reporter
	pollInterval time.Duration
	stepTimeout  time.Duration
}

// ControllerOption configures a CommandController.
type ControllerOption func(*CommandController)

// WithPollInterval sets the gate poll interval. Values above MaxPollInterval are capped and
// non-positive values select the default.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *CommandController) {
		switch {
		case d <= 0:
			c.pollInterval = DefaultPollInterval
		case d > MaxPollInterval:
			c.pollInterval = MaxPollInterval
		default:
			c.pollInterval = d
		}
	}
}

// WithStepTimeout makes WaitForStepCommand continue on its own after d. Zero waits forever.
func WithStepTimeout(d time.Duration) ControllerOption {
	return func(c *CommandController) {
		c.stepTimeout = d
	}
}

// NewCommandController creates a controller. A nil reporter drops status updates.
func NewCommandController(reg *commandregistry.Registry, reporter progress.Reporter, opts ...ControllerOption) *CommandController {
	if reporter == nil {
		reporter = progress.NewNullReporter()
	}

	c := &CommandController{
		reg:          reg,
		reporter:     reporter,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// IsEnded implements Controller.
func (c *CommandController) IsEnded() bool {
	return c.reg.IsEnded()
}

// IsCancelled implements Controller.
func (c *CommandController) IsCancelled() bool {
	return c.reg.IsCancelled()
}

// IsStepModeEnabled implements Controller.
func (c *CommandController) IsStepModeEnabled() bool {
	return c.reg.IsStepModeEnabled()
}

// Begin implements Controller.
func (c *CommandController) Begin(experiment string, total int) {
	c.reg.Update(func(s *commandregistry.ExecutionState) {
		s.ExecutionActive = true
		s.CurrentExperiment = experiment
		s.TotalIterations = total
		s.CurrentIteration = 0
		s.WaitingForStep = false
		s.WaitingForCommand = false
	})
}

// SetIteration implements Controller.
func (c *CommandController) SetIteration(i int) {
	c.reg.Update(func(s *commandregistry.ExecutionState) {
		s.CurrentIteration = i
	})
	c.reg.Heartbeat()
}

// Finish implements Controller.
func (c *CommandController) Finish() {
	c.reg.Update(func(s *commandregistry.ExecutionState) {
		s.ExecutionActive = false
		s.WaitingForCommand = false
		s.WaitingForStep = false
	})
}

// ConsumeSkip implements Controller.
func (c *CommandController) ConsumeSkip() bool {
	return c.consume(commandregistry.SkipCurrentTest, "skipped")
}

// ConsumeRetry implements Controller.
func (c *CommandController) ConsumeRetry() bool {
	return c.consume(commandregistry.RetryCurrentTest, "retried")
}

func (c *CommandController) consume(kind commandregistry.Kind, response string) bool {
	if !c.reg.StartProcessing(kind) {
		return false
	}

	return c.reg.Acknowledge(kind, response)
}

// AcknowledgeEnd implements Controller.
func (c *CommandController) AcknowledgeEnd(response string) {
	c.consume(commandregistry.EndExperiment, response)
}

// AcknowledgeStop implements Controller.
func (c *CommandController) AcknowledgeStop(response string) {
	c.consume(commandregistry.Cancel, response)
	c.consume(commandregistry.EmergencyStop, response)
}

func (c *CommandController) setWaiting(step, command bool) {
	c.reg.Update(func(s *commandregistry.ExecutionState) {
		s.WaitingForStep = step
		s.WaitingForCommand = command
	})
}

// WaitForContinueOrCancel implements Controller.
//
// A Resume that arrived while nothing was paused is acknowledged on entry so that it does
// not mask a later Pause.
func (c *CommandController) WaitForContinueOrCancel(ctx context.Context, current, total int) bool {
	if !c.reg.IsPaused() && c.reg.Has(commandregistry.Resume) {
		c.consume(commandregistry.Resume, "no pause pending")
	}

	if !c.reg.IsPaused() {
		return !c.stopRequested(ctx)
	}

	c.reg.StartProcessing(commandregistry.Pause)

	data := map[string]any{"current_iteration": current, "total_iterations": total}
	if reason, ok := c.reg.CommandData(commandregistry.Pause)["reason"]; ok {
		data["reason"] = reason
	}

	c.SendStatusUpdate(ctx, progress.EventExecutionHalted, "execution paused", data)
	c.setWaiting(false, true)

	defer c.setWaiting(false, false)

	ctxlog.Info(ctx, "execution paused, waiting for resume", "iteration", current, "total", total)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for c.reg.IsPaused() {
		if c.stopRequested(ctx) {
			ctxlog.Info(ctx, "stop requested while paused", "iteration", current)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}

	c.consume(commandregistry.Resume, fmt.Sprintf("resumed after iteration %d", current))

	if c.reg.Has(commandregistry.Pause) {
		c.consume(commandregistry.Pause, "resumed")
	}

	c.SendStatusUpdate(ctx, progress.EventExecutionResumed, "execution resumed",
		map[string]any{"current_iteration": current, "total_iterations": total})
	ctxlog.Info(ctx, "execution resumed", "iteration", current)

	return !c.stopRequested(ctx)
}

// WaitForStepCommand implements Controller.
// Disabling step mode while waiting releases the worker.
func (c *CommandController) WaitForStepCommand(ctx context.Context, current, total int, last executor.Result) bool {
	c.SendStatusUpdate(ctx, progress.EventStepWaiting, "waiting for step command", map[string]any{
		"current_iteration": current,
		"total_iterations":  total,
		"last_status":       string(last.Status),
		"scratchpad":        last.Scratchpad,
	})
	c.setWaiting(true, true)

	defer c.setWaiting(false, false)

	ctxlog.Info(ctx, "step mode: waiting for continue", "iteration", current, "total", total, "status", last.Status)

	var timeout <-chan time.Time

	if c.stepTimeout > 0 {
		timer := time.NewTimer(c.stepTimeout)
		defer timer.Stop()

		timeout = timer.C
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch {
		case c.reg.Has(commandregistry.StepContinue):
			c.consume(commandregistry.StepContinue, fmt.Sprintf("continued after iteration %d", current))
			return true
		case c.stopRequested(ctx):
			return false
		case !c.reg.IsStepModeEnabled():
			ctxlog.Info(ctx, "step mode disabled while waiting, continuing", "iteration", current)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-timeout:
			ctxlog.Warn(ctx, "step wait timed out, continuing", "iteration", current, "timeout", c.stepTimeout.String())
			return true
		case <-ticker.C:
		}
	}
}

// Sleep implements Controller.
func (c *CommandController) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			if c.stopRequested(ctx) {
				return false
			}
		}
	}
}

func (c *CommandController) stopRequested(ctx context.Context) bool {
	return ctx.Err() != nil || c.reg.ShouldStop()
}

// SendStatusUpdate implements Controller.
func (c *CommandController) SendStatusUpdate(ctx context.Context, t progress.EventType, message string, data map[string]any) {
	progress.Send(ctx, c.reporter, progress.NewEvent(t, progressSource, message, data))
}
