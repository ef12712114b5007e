// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

const maxOutputSize = 8 * 1024 * 1024 // 8MB

var (
	// ErrCouldNotStartProcess is returned when the process could not be started.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrFailedToCreatePipe is returned when the output pipe could not be created.
	ErrFailedToCreatePipe = errors.New("failed to create pipe")
	// ErrIterationCancelled is returned when the iteration context is cancelled.
	ErrIterationCancelled = errors.New("iteration cancelled")
	// ErrIterationTimeout is returned when the iteration exceeds its timeout.
	ErrIterationTimeout = errors.New("iteration timeout exceeded")
	// ErrNonZeroExit is returned when the process exits with a non-zero code.
	ErrNonZeroExit = errors.New("process exited with non-zero code")
	// ErrFailMarker is returned when the output contains the configured fail marker.
	ErrFailMarker = errors.New("output contains fail marker")
	// ErrPassMarkerMissing is returned when a pass marker is configured but absent.
	ErrPassMarkerMissing = errors.New("output does not contain pass marker")
)

var seedPattern = regexp.MustCompile(`(?mi)^\s*seed\s*[:=]\s*(\S+)`)

var _ Executor = (*ScriptExecutor)(nil)

// ScriptExecutor runs an external program once per iteration.
//
// The program runs in its own process group with the iteration configuration in HWLOOP_*
// environment variables. Stdout and stderr are captured together.
type ScriptExecutor struct {
	Path       string            // Program to run, resolved through PATH.
	Args       []string          // Arguments, excluding the program name.
	Env        map[string]string // Extra environment variables.
	Dir        string            // Working directory.
	PassString string            // If set, output must contain it for PASS.
	FailString string            // If set and present in the output, the result is FAIL.
	Timeout    time.Duration     // Per-iteration timeout, zero for none.
	LogDir     string            // If set, the output of every iteration is written here.
	Output     io.Writer         // Optional live copy of the output.
}

// Run implements Executor.
func (s *ScriptExecutor) Run(ctx context.Context, cfg Config) Result {
	logger := ctxlog.Logger(ctx).With("executor", "script", "iteration", cfg.Iteration)

	res := Result{
		Iteration: cfg.Iteration,
		Name:      cfg.Name,
		Timestamp: time.Now(),
		Config:    cfg,
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	path, err := exec.LookPath(s.Path)
	if err != nil {
		res.Status = StatusExecutionFail
		res.Err = errors.Join(ErrCouldNotStartProcess, err)

		return res
	}

	env := slices.Concat(os.Environ(), cfg.Environ())
	for _, k := range slices.Sorted(maps.Keys(s.Env)) {
		env = append(env, k+"="+s.Env[k])
	}

	rOut, wOut, err := os.Pipe()
	if err != nil {
		res.Status = StatusExecutionFail
		res.Err = errors.Join(ErrFailedToCreatePipe, err)

		return res
	}

	defer rOut.Close() //nolint:errcheck

	logger.Debug("starting process", "path", path, "args", s.Args, "dir", s.Dir)

	ps, err := os.StartProcess(path, slices.Concat([]string{filepath.Base(path)}, s.Args), &os.ProcAttr{
		Dir:   s.Dir,
		Env:   env,
		Files: []*os.File{nil, wOut, wOut},
		Sys:   processGroupAttr(),
	})

	_ = wOut.Close()

	if err != nil {
		res.Status = StatusExecutionFail
		res.Err = errors.Join(ErrCouldNotStartProcess, err)

		return res
	}

	logger.Debug("process started", "pid", ps.Pid)

	out := newOutputCapture(maxOutputSize, s.Output)
	copyDone := make(chan error, 1)

	go func() {
		_, err := io.Copy(out, rOut)
		copyDone <- err
	}()

	// The watchdog kills the whole process group when the context is done.
	done := make(chan struct{})
	killed := make(chan error, 1)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		select {
		case <-ctx.Done():
			logger.Info("context done, killing process group", "pid", ps.Pid, "error", ctx.Err())
			killProcessGroup(ctx, ps)
			killed <- ctx.Err()
		case <-done:
		}
	}()

	state, waitErr := ps.Wait()

	close(done)
	wg.Wait()

	if copyErr := <-copyDone; copyErr != nil && !errors.Is(copyErr, os.ErrClosed) {
		logger.Debug("error reading process output", "error", copyErr)
	}

	res.Duration = time.Since(res.Timestamp)
	res.Scratchpad = out.LastLine()
	output := out.String()

	if m := seedPattern.FindStringSubmatch(output); m != nil {
		res.Seed = m[1]
	}

	if s.LogDir != "" {
		res.LogPath = s.writeLog(ctx, cfg, output)
	}

	select {
	case kErr := <-killed:
		if errors.Is(kErr, context.DeadlineExceeded) {
			res.Status = StatusExecutionFail
			res.Err = fmt.Errorf("%w: %s", ErrIterationTimeout, s.Timeout)
		} else {
			res.Status = StatusCancelled
			res.Err = errors.Join(ErrIterationCancelled, kErr)
		}

		return res
	default:
	}

	if waitErr != nil {
		res.Status = StatusExecutionFail
		res.Err = waitErr

		return res
	}

	res.Status, res.Err = s.classify(state.ExitCode(), output)
	logger.Debug("process finished", "exitCode", state.ExitCode(), "status", res.Status)

	return res
}

func (s *ScriptExecutor) classify(exitCode int, output string) (Status, error) {
	switch {
	case s.FailString != "" && strings.Contains(output, s.FailString):
		return StatusFail, fmt.Errorf("%w: %q", ErrFailMarker, s.FailString)
	case exitCode != 0:
		return StatusFail, fmt.Errorf("%w: %d", ErrNonZeroExit, exitCode)
	case s.PassString != "" && !strings.Contains(output, s.PassString):
		return StatusFail, fmt.Errorf("%w: %q", ErrPassMarkerMissing, s.PassString)
	default:
		return StatusPass, nil
	}
}

func (s *ScriptExecutor) writeLog(ctx context.Context, cfg Config, output string) string {
	name := fmt.Sprintf("%s_iter%04d_%s.log", sanitize(cfg.Name), cfg.Iteration, time.Now().Format("20060102T150405"))
	path := filepath.Join(s.LogDir, name)

	if err := os.MkdirAll(s.LogDir, 0o755); err != nil {
		ctxlog.Warn(ctx, "cannot create log directory", "dir", s.LogDir, "error", err)
		return ""
	}

	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		ctxlog.Warn(ctx, "cannot write iteration log", "path", path, "error", err)
		return ""
	}

	return path
}

func sanitize(name string) string {
	if name == "" {
		return "iteration"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func killProcessGroup(ctx context.Context, ps *os.Process) {
	if err := killGroup(ps); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			ctxlog.Debug(ctx, "process already done", "pid", ps.Pid)
			return
		}

		ctxlog.Error(ctx, "process kill error", "pid", ps.Pid, "error", err)

		return
	}

	ctxlog.Info(ctx, "process killed", "pid", ps.Pid)
}
