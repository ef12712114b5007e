// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/commandregistry"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/matt-FFFFFF/hwloop/internal/experiment"
	"github.com/matt-FFFFFF/hwloop/internal/lifecycle"
	"github.com/matt-FFFFFF/hwloop/internal/progress"
	"github.com/matt-FFFFFF/hwloop/internal/strategy"
)

const (
	eventBufferSize = 256
	waitPoll        = 100 * time.Millisecond
)

const (
	exitOK        = 0
	exitConfig    = 1
	exitFailed    = 2
	exitAbandoned = 3
)

// session is one experiment run: the strategy worker, its supervisor and the command registry
// the operator talks to.
type session struct {
	ctx      context.Context
	plan     *experiment.Plan
	exec     executor.Executor
	reg      *commandregistry.Registry
	sup      *lifecycle.Supervisor
	reporter *progress.ChannelReporter
	ctl      *strategy.CommandController
	handle   *lifecycle.Handle
	worker   string
	summary  strategy.Summary
}

// outcome is what a session reports once the worker has stopped or been given up on.
type outcome struct {
	summary   strategy.Summary
	finished  bool
	abandoned []string
}

func (o outcome) exitCode() int {
	switch {
	case len(o.abandoned) > 0:
		return exitAbandoned
	case !o.finished, o.summary.Cancelled, o.summary.Failed():
		return exitFailed
	default:
		return exitOK
	}
}

func newSession(ctx context.Context, plan *experiment.Plan, exec executor.Executor) *session {
	s := &session{
		ctx:      ctx,
		plan:     plan,
		exec:     exec,
		reg:      commandregistry.New(ctx, commandregistry.WithLogLevelHook(ctxlog.SetLevel)),
		reporter: progress.NewChannelReporter(ctx, eventBufferSize),
	}

	s.reporter.Listen(progress.LogListener(ctxlog.Logger(ctx).With("component", "progress")))

	s.sup = lifecycle.New(ctx,
		lifecycle.WithTimeouts(plan.Timeouts),
		lifecycle.WithReporter(s.reporter),
	)

	s.ctl = strategy.NewCommandController(s.reg, s.reporter,
		strategy.WithPollInterval(plan.PollInterval),
		strategy.WithStepTimeout(plan.StepTimeout),
	)

	return s
}

// start launches the strategy on a supervised worker.
func (s *session) start() error {
	if !s.reg.IsReadyForExecution() {
		ctxlog.Warn(s.ctx, "registry not ready, preparing anyway")
	}

	s.reg.PrepareForExecution()

	if s.plan.StepMode {
		s.reg.EnableStepMode()
	}

	s.handle = lifecycle.NewHandle(func(ctx context.Context) error {
		s.summary = s.plan.Strategy.Run(ctx, s.exec, s.ctl, s.plan.Config)
		return nil
	})

	s.worker = s.sup.Register(s.handle, "strategy/"+s.plan.Name, map[string]any{
		"strategy": s.plan.Strategy.Name(),
		"planned":  s.plan.Strategy.Planned(),
	})

	if !s.sup.Start(s.worker) {
		return fmt.Errorf("%w: %s", ErrStartWorker, s.worker)
	}

	return nil
}

// wait blocks until the worker returns, or an emergency stop has left it abandoned.
func (s *session) wait() outcome {
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()

	for {
		select {
		case <-s.handle.Done():
			return outcome{summary: s.summary, finished: true}
		case <-ticker.C:
			s.reg.Heartbeat()

			if s.reg.Has(commandregistry.EmergencyStop) && !s.sup.IsThreadActive(s.worker) && s.handle.Alive() {
				return outcome{abandoned: s.sup.Abandoned()}
			}
		}
	}
}

// stop asks the strategy to stop at its next suspension point.
func (s *session) stop(reason string) {
	s.reg.Cancel(reason)
}

// emergencyStop records an emergency stop and forces every worker down.
func (s *session) emergencyStop(reason string) {
	s.reg.EmergencyStop(reason)
	s.sup.EmergencyShutdownAll()
}

// close finalizes the registry, cleans up workers and flushes progress events.
func (s *session) close(o outcome) {
	reason := "experiment " + o.summary.Outcome()
	if !o.finished {
		reason = "worker abandoned"
	}

	s.reg.FinalizeExecution(reason)

	if !s.sup.CleanupAll(s.sup.Timeouts().Cleanup) {
		ctxlog.Warn(s.ctx, "cleanup did not complete in time")
	}

	s.sup.Wait()
	s.reporter.Close()
}
