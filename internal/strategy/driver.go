// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/matt-FFFFFF/hwloop/internal/progress"
)

var (
	// ErrCancelledByCommand marks a result that completed after a cancel was requested.
	ErrCancelledByCommand = errors.New("cancelled by operator command")
	// ErrSkippedByCommand marks a result that was skipped on request.
	ErrSkippedByCommand = errors.New("skipped by operator command")
)

// Summary is the outcome of a strategy run.
type Summary struct {
	Strategy            string
	Experiment          string
	Results             []executor.Result
	Planned             int
	CompletedIterations int
	EndedByCommand      bool
	Cancelled           bool
	Stats               Stats
}

// CompletedNormally reports whether every planned iteration ran without a stop.
func (s Summary) CompletedNormally() bool {
	return !s.EndedByCommand && !s.Cancelled && s.CompletedIterations == s.Planned
}

// Failed reports whether any iteration did not pass or skip.
func (s Summary) Failed() bool {
	return s.Stats.Fail+s.Stats.Cancelled+s.Stats.ExecutionFail+s.Stats.Other > 0
}

type assignment struct {
	axis  Axis
	value float64
}

type point struct {
	label       string
	assignments []assignment
}

func (p point) apply(cfg *executor.Config) error {
	for _, a := range p.assignments {
		if err := cfg.Set(a.axis.Parameter, a.axis.Domain, a.value); err != nil {
			return err
		}
	}

	return nil
}

func (p point) values() map[string]any {
	out := make(map[string]any, len(p.assignments))
	for _, a := range p.assignments {
		out[a.axis.String()] = a.value
	}

	return out
}

// drive is the loop shared by every strategy.
func drive(
	ctx context.Context,
	name string,
	points []point,
	exec executor.Executor,
	ctl Controller,
	base executor.Config,
	opts options,
) Summary {
	total := len(points)
	logger := ctxlog.Logger(ctx).With("strategy", name, "experiment", base.Name)
	ctx = ctxlog.New(ctx, logger)

	sum := Summary{Strategy: name, Experiment: base.Name, Planned: total}
	cfg := base

	ctl.Begin(base.Name, total)
	ctl.SendStatusUpdate(ctx, progress.EventExperimentStarted, "experiment started", map[string]any{
		"strategy_type":    name,
		"experiment_name":  base.Name,
		"total_iterations": total,
	})
	logger.Info("strategy started", "iterations", total, "delay", opts.delay.String())

	endedAt := func(completed int, last executor.Status) {
		sum.EndedByCommand = true

		data := map[string]any{
			"completed_iterations": completed,
			"total_iterations":     total,
			"reason":               "end experiment command",
		}
		if last != "" {
			data["final_result"] = string(last)
		}

		ctl.SendStatusUpdate(ctx, progress.EventEndedByCommand, "experiment ended by command", data)
		ctl.AcknowledgeEnd(fmt.Sprintf("ended after iteration %d", completed))
		logger.Info("experiment ended by command", "completedIterations", completed)
	}

	emit := func(res executor.Result) {
		sum.Results = append(sum.Results, res)
		data := map[string]any{
			"iteration":        res.Iteration,
			"total_iterations": total,
			"label":            res.Label,
			"status":           string(res.Status),
			"scratchpad":       res.Scratchpad,
			"seed":             res.Seed,
			"log_path":         res.LogPath,
			"duration":         res.Duration.String(),
			"stats":            ComputeStats(sum.Results).Map(),
		}
		if res.Err != nil {
			data["error"] = res.Err.Error()
		}

		ctl.SendStatusUpdate(ctx, progress.EventIterationComplete, "iteration complete", data)
		logger.Info("iteration complete", "iteration", res.Iteration, "label", res.Label, "status", res.Status)
	}

loop:
	for i, p := range points {
		iter := i + 1
		last := iter == total

		if ctl.IsEnded() {
			logger.Info("end requested before iteration", "iteration", iter)
			endedAt(i, lastStatus(sum.Results))

			break
		}

		if ctl.IsCancelled() || ctx.Err() != nil {
			logger.Info("cancel requested before iteration", "iteration", iter)
			sum.Cancelled = true

			break
		}

		ctl.SetIteration(iter)
		cfg.Iteration = iter
		sum.CompletedIterations = iter

		progressData := map[string]any{
			"strategy_type":     name,
			"experiment_name":   base.Name,
			"current_iteration": iter,
			"total_iterations":  total,
			"progress_percent":  roundRate(float64(iter) / float64(total) * 100),
			"label":             p.label,
		}
		for k, v := range p.values() {
			progressData[k] = v
		}

		ctl.SendStatusUpdate(ctx, progress.EventStrategyProgress, "running iteration", progressData)

		if err := p.apply(&cfg); err != nil {
			emit(executor.Result{
				Iteration: iter,
				Label:     p.label,
				Name:      cfg.Name,
				Status:    executor.StatusError,
				Timestamp: time.Now(),
				Config:    cfg,
				Err:       err,
			})

			break
		}

		if ctl.ConsumeSkip() {
			emit(executor.Result{
				Iteration: iter,
				Label:     p.label,
				Name:      cfg.Name,
				Status:    executor.StatusSkipped,
				Timestamp: time.Now(),
				Config:    cfg,
				Err:       ErrSkippedByCommand,
			})

			continue
		}

		res := runOnce(ctx, exec, cfg, p.label)

		if ctl.ConsumeRetry() {
			logger.Info("retrying iteration", "iteration", iter, "previousStatus", res.Status)
			emit(res)

			res = runOnce(ctx, exec, cfg, p.label)
		}

		if ctl.IsCancelled() && res.Status != executor.StatusCancelled {
			res.Err = errors.Join(fmt.Errorf("%w: test reported %s", ErrCancelledByCommand, res.Status), res.Err)
			res.Status = executor.StatusCancelled
		}

		emit(res)

		switch res.Status {
		case executor.StatusFail:
			cfg.Reset = true
		case executor.StatusPass:
			cfg.Reset = cfg.ResetOnPass
		default:
			logger.Warn("stopping after terminal result", "iteration", iter, "status", res.Status)
			sum.Cancelled = res.Status == executor.StatusCancelled

			break loop
		}

		if ctl.IsEnded() {
			endedAt(iter, res.Status)
			break
		}

		if last {
			break
		}

		if ctl.IsStepModeEnabled() && !ctl.WaitForStepCommand(ctx, iter, total, res) {
			stopAtGate(ctl, &sum, iter, endedAt, res.Status)
			break
		}

		if !ctl.WaitForContinueOrCancel(ctx, iter, total) {
			stopAtGate(ctl, &sum, iter, endedAt, res.Status)
			break
		}

		ctl.Sleep(ctx, opts.delay)
	}

	ctl.Finish()

	sum.Stats = ComputeStats(sum.Results)

	if sum.Cancelled {
		ctl.AcknowledgeStop(fmt.Sprintf("stopped after iteration %d", sum.CompletedIterations))
	}

	data := map[string]any{
		"strategy_type":        name,
		"experiment_name":      base.Name,
		"total_executed":       len(sum.Results),
		"planned_iterations":   total,
		"completed_iterations": sum.CompletedIterations,
		"completed_normally":   sum.CompletedNormally(),
		"ended_by_command":     sum.EndedByCommand,
		"cancelled":            sum.Cancelled,
		"final_stats":          sum.Stats.Map(),
		"success_rate":         sum.Stats.PassRate,
	}

	ctl.SendStatusUpdate(ctx, progress.EventStrategyComplete, "strategy complete", data)
	logger.Info("strategy complete",
		"completed", sum.CompletedIterations,
		"planned", total,
		"pass", sum.Stats.Pass,
		"fail", sum.Stats.Fail,
		"endedByCommand", sum.EndedByCommand,
		"cancelled", sum.Cancelled)

	return sum
}

// stopAtGate records why a gate refused to continue.
func stopAtGate(ctl Controller, sum *Summary, iter int, endedAt func(int, executor.Status), last executor.Status) {
	if ctl.IsEnded() {
		endedAt(iter, last)
		return
	}

	sum.Cancelled = true
}

func lastStatus(results []executor.Result) executor.Status {
	if len(results) == 0 {
		return ""
	}

	return results[len(results)-1].Status
}

// runOnce runs one iteration and converts a panic into an EXECUTION_FAIL result.
func runOnce(ctx context.Context, exec executor.Executor, cfg executor.Config, label string) (res executor.Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			ctxlog.Error(ctx, "iteration panicked", "iteration", cfg.Iteration, "panic", r)
			res = executor.PanicResult(cfg, r)
		}

		if res.Iteration == 0 {
			res.Iteration = cfg.Iteration
		}

		if res.Name == "" {
			res.Name = cfg.Name
		}

		if res.Timestamp.IsZero() {
			res.Timestamp = start
		}

		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}

		res.Label = label
	}()

	return exec.Run(ctx, cfg)
}
