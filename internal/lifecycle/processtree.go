// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"os"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

const killPollInterval = 100 * time.Millisecond

var (
	selfPID = os.Getpid

	// terminateSelf asks the operating system to terminate the current process.
	terminateSelf = func(ctx context.Context) error {
		p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec
		if err != nil {
			return err
		}

		return p.TerminateWithContext(ctx)
	}
)

// ForceKillProcessTree terminates every descendant process of this process, kills the ones
// still running after the kill grace period and finally asks the operating system to
// terminate this process. It is the last resort of an emergency stop and reports whether
// the self termination request was made.
func (s *Supervisor) ForceKillProcessTree() bool {
	ctx := s.ctx

	self, err := process.NewProcessWithContext(ctx, int32(selfPID())) //nolint:gosec
	if err != nil {
		ctxlog.Error(ctx, "cannot inspect own process", "error", err)
		return false
	}

	children := descendants(ctx, self)
	ctxlog.Error(ctx, "force killing process tree", "pid", self.Pid, "descendants", len(children))

	var terms errgroup.Group

	for _, c := range children {
		terms.Go(func() error {
			return c.TerminateWithContext(ctx)
		})
	}

	if err := terms.Wait(); err != nil {
		ctxlog.Debug(ctx, "terminate of child process failed", "error", err)
	}

	survivors := waitForExit(ctx, children, s.timeouts.KillGrace)

	var kills errgroup.Group

	for _, c := range survivors {
		kills.Go(func() error {
			ctxlog.Warn(ctx, "killing child process", "pid", c.Pid)
			return c.KillWithContext(ctx)
		})
	}

	if err := kills.Wait(); err != nil {
		ctxlog.Warn(ctx, "kill of child process failed", "error", err)
	}

	if err := terminateSelf(ctx); err != nil {
		ctxlog.Error(ctx, "self termination failed", "error", err)
		return false
	}

	return true
}

// descendants returns every process below p, children first.
func descendants(ctx context.Context, p *process.Process) []*process.Process {
	var out []*process.Process

	seen := map[int32]bool{p.Pid: true}
	queue := []*process.Process{p}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := cur.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}

		for _, c := range children {
			if seen[c.Pid] {
				continue
			}

			seen[c.Pid] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}

	return out
}

// waitForExit polls procs until all have exited or grace elapses and returns the survivors.
func waitForExit(ctx context.Context, procs []*process.Process, grace time.Duration) []*process.Process {
	deadline := time.Now().Add(grace)
	remaining := procs

	for {
		alive := remaining[:0:0]

		for _, p := range remaining {
			if running, err := p.IsRunningWithContext(ctx); err == nil && running {
				alive = append(alive, p)
			}
		}

		remaining = alive
		if len(remaining) == 0 || time.Now().After(deadline) {
			return remaining
		}

		time.Sleep(killPollInterval)
	}
}
