// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package commandregistry

import "github.com/oklog/ulid/v2"

// ClearedDuringPreparation is the response stored on records force-processed by PrepareForExecution.
const ClearedDuringPreparation = "cleared during preparation"

// Cancel issues a Cancel command.
func (r *Registry) Cancel(reason string) bool {
	return r.Issue(Cancel, reasonPayload(reason), nil)
}

// EndExperiment issues an EndExperiment command.
func (r *Registry) EndExperiment(reason string) bool {
	return r.Issue(EndExperiment, reasonPayload(reason), nil)
}

// Pause issues a Pause command.
func (r *Registry) Pause(reason string) bool {
	return r.Issue(Pause, reasonPayload(reason), nil)
}

// Resume issues a Resume command, which also clears Pause.
func (r *Registry) Resume(reason string) bool {
	return r.Issue(Resume, reasonPayload(reason), nil)
}

// StepContinue releases a worker waiting in step mode.
func (r *Registry) StepContinue() bool {
	return r.Issue(StepContinue, nil, nil)
}

// EnableStepMode turns step mode on immediately.
func (r *Registry) EnableStepMode() bool {
	return r.Issue(EnableStepMode, nil, nil)
}

// DisableStepMode turns step mode off immediately.
func (r *Registry) DisableStepMode() bool {
	return r.Issue(DisableStepMode, nil, nil)
}

// EmergencyStop issues an EmergencyStop command.
func (r *Registry) EmergencyStop(reason string) bool {
	return r.Issue(EmergencyStop, reasonPayload(reason), nil)
}

// SkipCurrentTest asks the worker to skip the iteration it is about to run.
func (r *Registry) SkipCurrentTest(reason string) bool {
	return r.Issue(SkipCurrentTest, reasonPayload(reason), nil)
}

// RetryCurrentTest asks the worker to run the iteration it just finished again.
func (r *Registry) RetryCurrentTest(reason string) bool {
	return r.Issue(RetryCurrentTest, reasonPayload(reason), nil)
}

// ChangeLogLevel records the new log level and applies it through the log level hook.
func (r *Registry) ChangeLogLevel(level string) bool {
	return r.Issue(ChangeLogLevel, Payload{"level": level}, nil)
}

func reasonPayload(reason string) Payload {
	if reason == "" {
		return nil
	}

	return Payload{"reason": reason}
}

// ShouldStop reports whether any terminal command is active.
func (r *Registry) ShouldStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasLocked(Cancel) || r.hasLocked(EndExperiment) || r.hasLocked(EmergencyStop)
}

// IsCancelled reports whether Cancel or EmergencyStop is active.
func (r *Registry) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasLocked(Cancel) || r.hasLocked(EmergencyStop)
}

// IsEnded reports whether EndExperiment is active.
func (r *Registry) IsEnded() bool {
	return r.Has(EndExperiment)
}

// IsPaused reports whether Pause is active and Resume is not.
func (r *Registry) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasLocked(Pause) && !r.hasLocked(Resume)
}

// IsStepModeEnabled reports whether step mode is on.
func (r *Registry) IsStepModeEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.StepModeEnabled
}

func (r *Registry) hasLocked(kind Kind) bool {
	_, ok := r.active[kind]
	return ok
}

// State returns a copy of the execution state.
func (r *Registry) State() ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Update mutates the execution state under the registry lock.
// fn must not call back into the registry.
func (r *Registry) Update(fn func(s *ExecutionState)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&r.state)
}

// PrepareForExecution clears every active command, payload and callback and marks every
// unprocessed history record as processed.
//
// If no execution is marked active the state is reset to idle. If an execution is already
// active its experiment and totals are kept and only the transient wait flags are cleared,
// because the same call is made both before a fresh run and before continuing one.
func (r *Registry) PrepareForExecution() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleared := r.activeLocked()
	clear(r.active)
	clear(r.payloads)
	clear(r.callbacks)

	forced := 0
	now := r.now()

	for _, rec := range r.history {
		if rec.Processed {
			continue
		}

		rec.Processed = true
		rec.Acknowledged = true
		rec.AcknowledgedAt = now
		rec.Response = ClearedDuringPreparation
		forced++
	}

	preserve := r.state.ExecutionActive
	if preserve {
		r.state.WaitingForStep = false
		r.state.WaitingForCommand = false
		r.state.FrameworkReady = true
	} else {
		r.state.ExecutionActive = false
		r.state.CurrentExperiment = ""
		r.state.CurrentIteration = 0
		r.state.TotalIterations = 0
		r.state.WaitingForStep = false
		r.state.WaitingForCommand = false
		r.state.FrameworkReady = true
	}

	r.lastHeartbeat = now

	r.logger.Info("prepared for execution",
		"clearedCommands", kindNamesOf(cleared),
		"forceProcessed", forced,
		"preservedActiveExecution", preserve)

	return true
}

// FinalizeExecution marks the execution inactive, discards execution scoped commands and
// appends an audit record carrying reason.
func (r *Registry) FinalizeExecution(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.ExecutionActive = false
	r.state.FrameworkReady = true
	r.state.WaitingForStep = false
	r.state.WaitingForCommand = false

	var cleared []Kind

	for _, k := range r.activeLocked() {
		if !k.ExecutionScoped() {
			continue
		}

		cleared = append(cleared, k)
		delete(r.active, k)
		delete(r.payloads, k)
		delete(r.callbacks, k)
	}

	now := r.now()
	rec := &Record{
		Kind:      RequestStatus,
		IssuedAt:  now,
		Payload:   Payload{"action": "finalize", "reason": reason},
		Processed: true,
	}

	if id, err := ulid.New(ulid.Timestamp(now), r.entropy); err == nil {
		rec.ID = id
	}

	r.appendHistory(rec)

	r.logger.Info("execution finalized", "reason", reason, "clearedCommands", kindNamesOf(cleared))
}

// IsReadyForExecution reports whether a new execution may start.
func (r *Registry) IsReadyForExecution() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.FrameworkReady && !r.state.ExecutionActive && !r.hasLocked(EmergencyStop)
}

func kindNamesOf(ks []Kind) []string {
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.String()
	}

	return names
}
