// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyStarted is returned when a handle is started twice.
	ErrAlreadyStarted = errors.New("worker already started")
	// ErrNoWorkFunc is returned when a handle has no function to run.
	ErrNoWorkFunc = errors.New("worker has no function")
)

// ErrWorkerPanic is returned by Handle.Err when the worker panicked.
type ErrWorkerPanic struct {
	Value any
}

// Error implements the error interface for ErrWorkerPanic.
func (e *ErrWorkerPanic) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// WorkFunc is the body of a supervised worker.
// ctx is cancelled when a graceful or forced stop is requested.
type WorkFunc func(ctx context.Context) error

type forceKey struct{}

// ForceStopRequested returns a channel that is closed when the supervisor force stops the
// worker that owns ctx. It returns nil for a context that does not belong to a worker.
func ForceStopRequested(ctx context.Context) <-chan struct{} {
	ch, _ := ctx.Value(forceKey{}).(chan struct{})
	return ch
}

// Handle is a supervised goroutine.
type Handle struct {
	fn        WorkFunc
	started   atomic.Bool
	cancel    context.CancelFunc
	force     chan struct{}
	forceOnce sync.Once
	done      chan struct{}
	err       error
	mu        sync.Mutex
}

// NewHandle creates a handle that will run fn when started.
func NewHandle(fn WorkFunc) *Handle {
	return &Handle{
		fn:    fn,
		force: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (h *Handle) start(parent context.Context) error {
	if h.fn == nil {
		return ErrNoWorkFunc
	}

	if !h.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.WithValue(parent, forceKey{}, h.force))

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	go func() {
		defer close(h.done)
		defer cancel()

		err := h.run(ctx)

		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()

	return nil
}

func (h *Handle) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrWorkerPanic{Value: r}
		}
	}()

	return h.fn(ctx)
}

// requestStop cancels the worker context.
func (h *Handle) requestStop() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// forceStop closes the force channel and cancels the worker context.
func (h *Handle) forceStop() {
	h.forceOnce.Do(func() { close(h.force) })
	h.requestStop()
}

// Started reports whether the worker goroutine was launched.
func (h *Handle) Started() bool {
	return h.started.Load()
}

// Alive reports whether the worker goroutine is running.
func (h *Handle) Alive() bool {
	if !h.started.Load() {
		return false
	}

	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the worker exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Join waits up to timeout for the worker to exit and reports whether it did.
// A handle that was never started has nothing to join and returns true.
func (h *Handle) Join(timeout time.Duration) bool {
	if !h.started.Load() {
		return true
	}

	if timeout <= 0 {
		return !h.Alive()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Err returns the error the worker exited with, if it has exited.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}
