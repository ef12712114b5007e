// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package lifecycle

// ThreadState is the lifecycle state of a supervised worker.
type ThreadState int

const (
	// StateIdle is a registered worker that has not been started.
	StateIdle ThreadState = iota
	// StateStarting is a worker whose goroutine is being launched.
	StateStarting
	// StateRunning is a running worker.
	StateRunning
	// StateStopping is a worker that has been asked to stop.
	StateStopping
	// StateCleanup is a worker that has been force stopped.
	StateCleanup
	// StateTerminated is a worker that exited and was finalized.
	StateTerminated
	// StateAbandoned is a worker that could not be stopped.
	StateAbandoned
	// StateError is a worker that could not be started.
	StateError
)

// String implements the Stringer interface for ThreadState.
func (s ThreadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCleanup:
		return "cleanup"
	case StateTerminated:
		return "terminated"
	case StateAbandoned:
		return "abandoned"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CleanupPhase is the shutdown progress of a worker. Phases only move forward.
type CleanupPhase int

const (
	// PhaseInitiated is entered when shutdown is requested.
	PhaseInitiated CleanupPhase = iota
	// PhaseFrameworkStopping runs the cleanup callbacks.
	PhaseFrameworkStopping
	// PhaseThreadJoining waits for the worker to exit.
	PhaseThreadJoining
	// PhaseStateCleanup is entered when the worker is force stopped.
	PhaseStateCleanup
	// PhaseUICleanup runs the UI cleanup hook.
	PhaseUICleanup
	// PhaseFinalization removes the worker from tracking.
	PhaseFinalization
	// PhaseCompleted means the worker exited and was cleaned up.
	PhaseCompleted
	// PhaseFailed means the worker was abandoned.
	PhaseFailed
)

// String implements the Stringer interface for CleanupPhase.
func (p CleanupPhase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhaseFrameworkStopping:
		return "framework_stopping"
	case PhaseThreadJoining:
		return "thread_joining"
	case PhaseStateCleanup:
		return "state_cleanup"
	case PhaseUICleanup:
		return "ui_cleanup"
	case PhaseFinalization:
		return "finalization"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether p is Completed or Failed.
func (p CleanupPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

func (p CleanupPhase) percent() int {
	switch p {
	case PhaseInitiated:
		return 10
	case PhaseFrameworkStopping:
		return 30
	case PhaseThreadJoining:
		return 50
	case PhaseStateCleanup:
		return 60
	case PhaseUICleanup:
		return 80
	case PhaseFinalization:
		return 90
	default:
		return 100
	}
}
