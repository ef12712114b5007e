// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
	"github.com/matt-FFFFFF/hwloop/internal/progress"
)

const progressSource = "lifecycle"

// Timeouts controls how long each shutdown stage waits.
type Timeouts struct {
	Graceful       time.Duration // Join after cancelling the worker context.
	Force          time.Duration // Join after closing the force channel.
	Cleanup        time.Duration // Overall wait used by CleanupAll and WaitForCleanupComplete.
	EmergencyGrace time.Duration // Wait between force stop and abandon in EmergencyShutdownAll.
	KillGrace      time.Duration // Wait between terminate and kill in ForceKillProcessTree.
	PollInterval   time.Duration // Poll interval of WaitForCleanupComplete.
}

// DefaultTimeouts returns the default shutdown timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Graceful:       5 * time.Second,
		Force:          10 * time.Second,
		Cleanup:        15 * time.Second,
		EmergencyGrace: time.Second,
		KillGrace:      3 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

// CleanupCallback runs when a graceful shutdown of its worker begins.
type CleanupCallback func() error

// Progress is the latest cleanup progress of a worker.
type Progress struct {
	Message   string
	Percent   int
	Timestamp time.Time
}

type threadRecord struct {
	name             string
	handle           *Handle
	state            ThreadState
	startTime        time.Time
	cleanupStartTime time.Time
	forceStopTime    time.Time
	metadata         map[string]any
	callbacks        []CleanupCallback
}

// ThreadInfo is a point in time copy of a worker record.
type ThreadInfo struct {
	Name             string
	State            ThreadState
	Alive            bool
	StartTime        time.Time
	CleanupStartTime time.Time
	ForceStopTime    time.Time
	Metadata         map[string]any
	Phase            CleanupPhase
	HasPhase         bool
	Progress         Progress
	Err              error
}

// Supervisor tracks the workers of an experiment and stops them in phases.
type Supervisor struct {
	ctx       context.Context
	mu        sync.Mutex
	timeouts  Timeouts
	reporter  progress.Reporter
	uiCleanup func()
	now       func() time.Time
	threads   map[string]*threadRecord
	phases    map[string]CleanupPhase
	progress  map[string]Progress
	abandoned map[string]*threadRecord
	wg        sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTimeouts replaces the default timeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(s *Supervisor) {
		def := DefaultTimeouts()
		s.timeouts = Timeouts{
			Graceful:       orDefault(t.Graceful, def.Graceful),
			Force:          orDefault(t.Force, def.Force),
			Cleanup:        orDefault(t.Cleanup, def.Cleanup),
			EmergencyGrace: orDefault(t.EmergencyGrace, def.EmergencyGrace),
			KillGrace:      orDefault(t.KillGrace, def.KillGrace),
			PollInterval:   orDefault(t.PollInterval, def.PollInterval),
		}
	}
}

// WithReporter sends cleanup progress and abandon events to r.
func WithReporter(r progress.Reporter) Option {
	return func(s *Supervisor) {
		s.reporter = r
	}
}

// WithUICleanup sets a hook that runs during the UI cleanup phase of every worker.
func WithUICleanup(fn func()) Option {
	return func(s *Supervisor) {
		s.uiCleanup = fn
	}
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}

	return v
}

// New creates a supervisor. The context supplies the logger and is the parent of every
// worker context.
func New(ctx context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{
		ctx:       ctx,
		timeouts:  DefaultTimeouts(),
		reporter:  progress.NewNullReporter(),
		now:       time.Now,
		threads:   make(map[string]*threadRecord),
		phases:    make(map[string]CleanupPhase),
		progress:  make(map[string]Progress),
		abandoned: make(map[string]*threadRecord),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Timeouts returns the timeouts in use.
func (s *Supervisor) Timeouts() Timeouts {
	return s.timeouts
}

// Register tracks h under name in the Idle state and returns the name.
// Registering a name again replaces the previous record and its cleanup history.
func (s *Supervisor) Register(h *Handle, name string, metadata map[string]any) string {
	if h == nil {
		h = NewHandle(nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.threads[name]; ok && old.handle.Alive() {
		ctxlog.Warn(s.ctx, "replacing a live worker registration", "thread", name, "state", old.state.String())
	}

	s.threads[name] = &threadRecord{
		name:     name,
		handle:   h,
		state:    StateIdle,
		metadata: maps.Clone(metadata),
	}
	delete(s.phases, name)
	delete(s.progress, name)

	ctxlog.Debug(s.ctx, "worker registered", "thread", name)

	return name
}

// Start launches a registered Idle worker.
func (s *Supervisor) Start(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.threads[name]
	if !ok {
		ctxlog.Warn(s.ctx, "cannot start unknown worker", "thread", name)
		return false
	}

	if rec.state != StateIdle {
		ctxlog.Warn(s.ctx, "cannot start worker that is not idle", "thread", name, "state", rec.state.String())
		return false
	}

	rec.state = StateStarting

	if err := rec.handle.start(s.ctx); err != nil {
		rec.state = StateError
		ctxlog.Error(s.ctx, "worker failed to start", "thread", name, "error", err)

		return false
	}

	rec.state = StateRunning
	rec.startTime = s.now()

	ctxlog.Debug(s.ctx, "worker started", "thread", name)

	return true
}

// AddCleanupCallback appends a callback that runs when a graceful shutdown of name begins.
func (s *Supervisor) AddCleanupCallback(name string, cb CleanupCallback) bool {
	if cb == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.threads[name]
	if !ok {
		return false
	}

	rec.callbacks = append(rec.callbacks, cb)

	return true
}

// RequestGracefulShutdown starts the shutdown of a running worker and returns immediately.
// It cancels the worker context and launches a monitor that runs the cleanup callbacks and
// joins the worker, escalating to a force stop after timeout. A timeout of zero uses the
// configured graceful timeout.
// It returns false for an unknown name and true when the worker is not running.
func (s *Supervisor) RequestGracefulShutdown(name string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.timeouts.Graceful
	}

	s.mu.Lock()

	rec, ok := s.threads[name]
	if !ok {
		s.mu.Unlock()
		ctxlog.Warn(s.ctx, "cannot stop unknown worker", "thread", name)

		return false
	}

	if rec.state != StateRunning {
		s.mu.Unlock()
		return true
	}

	rec.state = StateStopping
	rec.cleanupStartTime = s.now()
	s.setPhaseLocked(name, PhaseInitiated, "shutdown requested")
	callbacks := append([]CleanupCallback(nil), rec.callbacks...)
	s.wg.Add(1)
	s.mu.Unlock()

	s.sendProgress(name, PhaseInitiated, "shutdown requested")
	ctxlog.Info(s.ctx, "graceful shutdown requested", "thread", name, "timeout", timeout.String())

	rec.handle.requestStop()

	go s.monitorGracefulShutdown(rec, callbacks, timeout)

	return true
}

func (s *Supervisor) monitorGracefulShutdown(rec *threadRecord, callbacks []CleanupCallback, timeout time.Duration) {
	defer s.wg.Done()

	s.setPhase(rec, PhaseFrameworkStopping, "running cleanup callbacks")

	var errs *multierror.Error

	for i, cb := range callbacks {
		errs = multierror.Append(errs, runCallback(i, cb))
	}

	if err := errs.ErrorOrNil(); err != nil {
		ctxlog.Warn(s.ctx, "cleanup callbacks failed", "thread", rec.name, "error", err)
	}

	s.setPhase(rec, PhaseThreadJoining, "waiting for worker to exit")

	if rec.handle.Join(timeout) {
		s.finalize(rec, true)
		return
	}

	ctxlog.Warn(s.ctx, "worker did not stop in time, forcing", "thread", rec.name, "timeout", timeout.String())
	s.forceTerminate(rec)
}

func runCallback(i int, cb CleanupCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup callback %d panicked: %v", i, r)
		}
	}()

	if err := cb(); err != nil {
		return fmt.Errorf("cleanup callback %d: %w", i, err)
	}

	return nil
}

func (s *Supervisor) forceTerminate(rec *threadRecord) {
	s.mu.Lock()
	if s.threads[rec.name] != rec {
		s.mu.Unlock()
		return
	}

	rec.state = StateCleanup
	rec.forceStopTime = s.now()
	s.mu.Unlock()

	s.setPhase(rec, PhaseStateCleanup, "forcing worker to stop")
	rec.handle.forceStop()

	if rec.handle.Join(s.timeouts.Force) {
		s.finalize(rec, false)
		return
	}

	s.abandon(rec)
}

func (s *Supervisor) abandon(rec *threadRecord) {
	s.mu.Lock()
	if rec.state == StateAbandoned {
		s.mu.Unlock()
		return
	}

	rec.state = StateAbandoned
	s.abandoned[rec.name] = rec
	s.mu.Unlock()

	s.setPhase(rec, PhaseFailed, "worker abandoned")

	ctxlog.Error(s.ctx, "worker could not be stopped and was abandoned", "thread", rec.name)
	progress.Send(s.ctx, s.reporter, progress.NewEvent(progress.EventThreadAbandoned, progressSource,
		"worker abandoned", map[string]any{"thread": rec.name}))
}

func (s *Supervisor) finalize(rec *threadRecord, graceful bool) {
	s.setPhase(rec, PhaseUICleanup, "cleaning up user interface")

	if s.uiCleanup != nil {
		s.runUICleanup()
	}

	s.setPhase(rec, PhaseFinalization, "finalizing")

	s.mu.Lock()
	rec.state = StateTerminated
	if s.threads[rec.name] == rec {
		delete(s.threads, rec.name)
	}
	s.mu.Unlock()

	s.setPhase(rec, PhaseCompleted, "cleanup complete")

	if err := rec.handle.Err(); err != nil {
		ctxlog.Warn(s.ctx, "worker exited with error", "thread", rec.name, "error", err)
	}

	ctxlog.Info(s.ctx, "worker stopped", "thread", rec.name, "graceful", graceful)
}

func (s *Supervisor) runUICleanup() {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.Error(s.ctx, "ui cleanup panicked", "panic", r)
		}
	}()

	s.uiCleanup()
}

// setPhase moves the phase of rec forward and reports it.
func (s *Supervisor) setPhase(rec *threadRecord, phase CleanupPhase, message string) {
	s.mu.Lock()
	changed := s.setPhaseLocked(rec.name, phase, message)
	s.mu.Unlock()

	if changed {
		s.sendProgress(rec.name, phase, message)
	}
}

func (s *Supervisor) setPhaseLocked(name string, phase CleanupPhase, message string) bool {
	if cur, ok := s.phases[name]; ok && (cur.Terminal() || phase <= cur) {
		return false
	}

	s.phases[name] = phase
	s.progress[name] = Progress{
		Message:   message,
		Percent:   phase.percent(),
		Timestamp: s.now(),
	}

	return true
}

func (s *Supervisor) sendProgress(name string, phase CleanupPhase, message string) {
	ctxlog.Debug(s.ctx, "cleanup progress", "thread", name, "phase", phase.String(), "percent", phase.percent())
	progress.Send(s.ctx, s.reporter, progress.NewEvent(progress.EventCleanupProgress, progressSource, message,
		map[string]any{
			"thread":  name,
			"phase":   phase.String(),
			"percent": phase.percent(),
		}))
}

// EmergencyShutdownAll force stops every tracked worker at once, waits the emergency grace
// period and abandons any worker still alive. Tracking is cleared afterwards. Abandoned
// workers remain visible through Abandoned.
func (s *Supervisor) EmergencyShutdownAll() bool {
	s.mu.Lock()
	recs := make([]*threadRecord, 0, len(s.threads))

	for _, rec := range s.threads {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	ctxlog.Error(s.ctx, "emergency shutdown of all workers", "count", len(recs))

	for _, rec := range recs {
		s.mu.Lock()
		if rec.state == StateRunning || rec.state == StateStopping {
			rec.state = StateCleanup
			rec.forceStopTime = s.now()
		}
		s.mu.Unlock()

		s.setPhase(rec, PhaseStateCleanup, "emergency stop")
		rec.handle.forceStop()
	}

	if len(recs) > 0 {
		time.Sleep(s.timeouts.EmergencyGrace)
	}

	for _, rec := range recs {
		if rec.handle.Alive() {
			s.abandon(rec)
			continue
		}

		s.mu.Lock()
		if rec.state != StateAbandoned {
			rec.state = StateTerminated
		}
		s.mu.Unlock()
		s.setPhase(rec, PhaseCompleted, "stopped by emergency shutdown")
	}

	s.mu.Lock()
	clear(s.threads)
	s.mu.Unlock()

	return true
}

// Abandoned returns the sorted names of workers that could not be stopped.
func (s *Supervisor) Abandoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.abandoned))
	for name := range s.abandoned {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// IsCleanupComplete reports whether no tracked worker is running or mid-shutdown.
// Abandoned workers count as complete.
func (s *Supervisor) IsCleanupComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.threads {
		switch rec.state {
		case StateStarting, StateRunning, StateStopping, StateCleanup:
			return false
		}
	}

	return true
}

// WaitForCleanupComplete polls IsCleanupComplete until it holds or timeout elapses.
// A timeout of zero uses the configured cleanup timeout.
func (s *Supervisor) WaitForCleanupComplete(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.timeouts.Cleanup
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(s.timeouts.PollInterval)
	defer ticker.Stop()

	for {
		if s.IsCleanupComplete() {
			return true
		}

		select {
		case <-deadline.C:
			return s.IsCleanupComplete()
		case <-ticker.C:
		}
	}
}

// CleanupAll requests a graceful shutdown of every worker and waits for completion.
// Workers that were never started are dropped from tracking.
func (s *Supervisor) CleanupAll(timeout time.Duration) bool {
	s.mu.Lock()
	names := make([]string, 0, len(s.threads))

	for name, rec := range s.threads {
		if rec.state == StateIdle || rec.state == StateError {
			delete(s.threads, name)
			continue
		}

		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.RequestGracefulShutdown(name, 0)
	}

	return s.WaitForCleanupComplete(timeout)
}

// Wait blocks until every shutdown monitor launched by the supervisor has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// ThreadInfo returns a copy of the record of name.
func (s *Supervisor) ThreadInfo(name string) (ThreadInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.threads[name]
	if !ok {
		rec, ok = s.abandoned[name]
	}

	if !ok {
		return ThreadInfo{}, false
	}

	return s.infoLocked(rec), true
}

// IsThreadActive reports whether name is tracked and its goroutine is alive.
func (s *Supervisor) IsThreadActive(name string) bool {
	s.mu.Lock()
	rec, ok := s.threads[name]
	s.mu.Unlock()

	return ok && rec.handle.Alive()
}

// CleanupPhase returns the current cleanup phase of name.
func (s *Supervisor) CleanupPhase(name string) (CleanupPhase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, ok := s.phases[name]

	return phase, ok
}

// ThreadStatus returns a copy of every tracked record keyed by name.
func (s *Supervisor) ThreadStatus() map[string]ThreadInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ThreadInfo, len(s.threads))
	for name, rec := range s.threads {
		out[name] = s.infoLocked(rec)
	}

	return out
}

func (s *Supervisor) infoLocked(rec *threadRecord) ThreadInfo {
	phase, hasPhase := s.phases[rec.name]

	return ThreadInfo{
		Name:             rec.name,
		State:            rec.state,
		Alive:            rec.handle.Alive(),
		StartTime:        rec.startTime,
		CleanupStartTime: rec.cleanupStartTime,
		ForceStopTime:    rec.forceStopTime,
		Metadata:         maps.Clone(rec.metadata),
		Phase:            phase,
		HasPhase:         hasPhase,
		Progress:         s.progress[rec.name],
		Err:              rec.handle.Err(),
	}
}
