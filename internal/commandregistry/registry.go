// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package commandregistry

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/oklog/ulid/v2"
)

// DefaultHistoryLimit is the number of command records kept for diagnostics.
const DefaultHistoryLimit = 100

// Registry is the lock-protected store of active commands and execution state.
// All methods are safe for concurrent use. Callbacks run outside the lock.
type Registry struct {
	mu           sync.Mutex
	logger       *slog.Logger
	now          func() time.Time
	entropy      io.Reader
	historyLimit int
	logLevelHook func(level string) error

	state         ExecutionState
	active        map[Kind]struct{}
	payloads      map[Kind]Payload
	callbacks     map[Kind][]Callback
	history       []*Record
	lastHeartbeat time.Time
}

// Option configures a Registry.
type Option func(r *Registry)

// WithHistoryLimit sets the number of history records retained.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithLogLevelHook sets a function that is called with the requested level whenever
// ChangeLogLevel is issued.
func WithLogLevelHook(fn func(level string) error) Option {
	return func(r *Registry) {
		r.logLevelHook = fn
	}
}

// WithClock replaces the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a Registry in the idle state. The logger is taken from ctx.
func New(ctx context.Context, opts ...Option) *Registry {
	r := &Registry{
		logger:       ctxlog.Logger(ctx).With("component", "commandregistry"),
		now:          time.Now,
		entropy:      ulid.Monotonic(rand.Reader, 0),
		historyLimit: DefaultHistoryLimit,
		state:        idleState(DefaultLogLevel),
		active:       make(map[Kind]struct{}),
		payloads:     make(map[Kind]Payload),
		callbacks:    make(map[Kind][]Callback),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.lastHeartbeat = r.now()

	return r
}

// Issue activates a command.
// Terminal commands (Cancel, EndExperiment, EmergencyStop) that are already active are not
// recorded again and Issue returns true; a callback given in that case is attached to the
// active command. Issue returns false only when the command cannot be recorded.
func (r *Registry) Issue(kind Kind, payload Payload, cb Callback) bool {
	if !kind.Valid() {
		r.logger.Error("cannot issue command", "command", kind.String(), "error", ErrUnknownKind)
		return false
	}

	r.mu.Lock()

	if _, ok := r.active[kind]; ok && kind.Terminal() {
		if cb != nil {
			r.callbacks[kind] = append(r.callbacks[kind], cb)
		}

		r.mu.Unlock()
		r.logger.Debug("command already active, skipping duplicate", "command", kind.String())

		return true
	}

	now := r.now()

	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("cannot issue command", "command", kind.String(), "error", err)

		return false
	}

	rec := &Record{
		ID:       id,
		Kind:     kind,
		IssuedAt: now,
		Payload:  payload.clone(),
	}

	r.active[kind] = struct{}{}
	if len(payload) > 0 {
		r.payloads[kind] = payload.clone()
	}

	if cb != nil {
		r.callbacks[kind] = append(r.callbacks[kind], cb)
	}

	r.appendHistory(rec)

	level, levelChanged := r.applyImmediate(kind, rec.Payload)
	warnStep := kind == StepContinue && (!r.state.StepModeEnabled || !r.state.WaitingForStep)
	stepState := r.state

	r.mu.Unlock()

	r.logger.Info("command issued", "command", kind.String(), "id", id.String())

	if warnStep {
		r.logger.Warn("step continue issued while worker is not waiting for a step",
			"stepModeEnabled", stepState.StepModeEnabled,
			"waitingForStep", stepState.WaitingForStep)
	}

	if levelChanged && r.logLevelHook != nil {
		if err := r.logLevelHook(level); err != nil {
			r.logger.Warn("log level hook failed", "level", level, "error", err)
		}
	}

	return true
}

// applyImmediate applies side effects that must be visible as soon as a command is issued.
// Must be called with the lock held.
func (r *Registry) applyImmediate(kind Kind, payload Payload) (string, bool) {
	switch kind {
	case EnableStepMode:
		r.state.StepModeEnabled = true
		delete(r.active, DisableStepMode)
	case DisableStepMode:
		r.state.StepModeEnabled = false
		delete(r.active, EnableStepMode)
	case ChangeLogLevel:
		level, _ := payload["level"].(string)
		if level == "" {
			level = DefaultLogLevel
		}

		r.state.LogLevel = level

		return level, true
	case Resume:
		delete(r.active, Pause)
	}

	return "", false
}

// appendHistory must be called with the lock held.
func (r *Registry) appendHistory(rec *Record) {
	r.history = append(r.history, rec)
	if over := len(r.history) - r.historyLimit; over > 0 {
		r.history = slices.Delete(r.history, 0, over)
	}
}

// Has reports whether kind is active.
func (r *Registry) Has(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.active[kind]

	return ok
}

// Active returns a sorted copy of the active command set.
func (r *Registry) Active() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeLocked()
}

func (r *Registry) activeLocked() []Kind {
	return slices.Sorted(maps.Keys(r.active))
}

// StartProcessing records that the worker has begun reacting to kind.
// It returns false if kind is not active.
func (r *Registry) StartProcessing(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[kind]; !ok {
		r.logger.Debug("cannot start processing inactive command", "command", kind.String())
		return false
	}

	for i := len(r.history) - 1; i >= 0; i-- {
		rec := r.history[i]
		if rec.Kind == kind && !rec.Processed {
			if !rec.ProcessingStarted {
				rec.ProcessingStarted = true
				rec.ProcessingStartedAt = r.now()
			}

			break
		}
	}

	return true
}

// Acknowledge completes an active command: it is removed from the active set, its history
// records are marked processed and acknowledged, its payload is cleared and every callback
// registered for it is invoked with response. It returns false if kind was not active.
func (r *Registry) Acknowledge(kind Kind, response any) bool {
	r.mu.Lock()

	if _, ok := r.active[kind]; !ok {
		r.mu.Unlock()
		r.logger.Warn("acknowledge of inactive command", "command", kind.String())

		return false
	}

	delete(r.active, kind)
	delete(r.payloads, kind)

	cbs := r.callbacks[kind]
	delete(r.callbacks, kind)

	now := r.now()

	for _, rec := range r.history {
		if rec.Kind != kind || rec.Acknowledged {
			continue
		}

		rec.Processed = true
		rec.Acknowledged = true
		rec.AcknowledgedAt = now
		rec.Response = response
	}

	r.mu.Unlock()

	r.logger.Info("command acknowledged", "command", kind.String(), "response", response)

	for _, cb := range cbs {
		r.invoke(cb, kind, response)
	}

	return true
}

func (r *Registry) invoke(cb Callback, kind Kind, response any) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command callback panicked", "command", kind.String(), "panic", p)
		}
	}()

	cb(kind, response)
}

// CommandData returns a copy of the payload stored for kind, or an empty payload.
func (r *Registry) CommandData(kind Kind) Payload {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.payloads[kind].clone()
}

// ClearAll empties the active set, payloads and pending callbacks.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.active)
	clear(r.payloads)
	clear(r.callbacks)
	r.logger.Debug("all commands cleared")
}

// History returns copies of the most recent limit records, oldest first.
// A limit of zero or less returns the whole history.
func (r *Registry) History(limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if limit > 0 && limit < len(r.history) {
		start = len(r.history) - limit
	}

	out := make([]Record, 0, len(r.history)-start)
	for _, rec := range r.history[start:] {
		out = append(out, rec.copy())
	}

	return out
}

// Lifecycle returns timing information for the most recent command of kind.
func (r *Registry) Lifecycle(kind Kind) (Lifecycle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Kind == kind {
			return lifecycleOf(r.history[i]), true
		}
	}

	return Lifecycle{}, false
}

// Heartbeat records that the control surface is alive.
func (r *Registry) Heartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastHeartbeat = r.now()
}

// Snapshot returns the execution state, active commands and heartbeat in one consistent read.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		State:         r.state,
		Active:        r.activeLocked(),
		LastHeartbeat: r.lastHeartbeat,
		HistoryLen:    len(r.history),
	}
}

// Reset returns the registry to its initial state and drops the history.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = idleState(DefaultLogLevel)
	clear(r.active)
	clear(r.payloads)
	clear(r.callbacks)
	r.history = nil
	r.lastHeartbeat = r.now()
	r.logger.Info("registry reset")
}
