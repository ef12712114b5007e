// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package commandregistry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a command name cannot be parsed.
var ErrUnknownKind = errors.New("unknown command kind")

// Kind is the kind of an operator command.
type Kind int

const (
	// Cancel stops the experiment at the next suspension point.
	Cancel Kind = iota
	// EndExperiment stops the experiment after the current iteration completes.
	EndExperiment
	// Pause halts the worker at the next gate until Resume is issued.
	Pause
	// Resume releases a paused worker. Issuing it removes Pause from the active set.
	Resume
	// StepContinue releases a worker waiting in step mode.
	StepContinue
	// EnableStepMode makes the worker wait for StepContinue after every iteration.
	EnableStepMode
	// DisableStepMode turns step mode off.
	DisableStepMode
	// SkipCurrentTest skips the iteration that is about to run.
	SkipCurrentTest
	// RetryCurrentTest runs the iteration that just completed once more.
	RetryCurrentTest
	// ChangeLogLevel changes the process log level. The payload carries "level".
	ChangeLogLevel
	// EmergencyStop stops everything as soon as possible.
	EmergencyStop
	// RequestStatus asks for a status report. Also used for audit records.
	RequestStatus
	// Heartbeat signals that the control surface is alive.
	Heartbeat

	kindCount
)

var kindNames = [...]string{
	Cancel:           "cancel",
	EndExperiment:    "end_experiment",
	Pause:            "pause",
	Resume:           "resume",
	StepContinue:     "step_continue",
	EnableStepMode:   "enable_step_mode",
	DisableStepMode:  "disable_step_mode",
	SkipCurrentTest:  "skip_current_test",
	RetryCurrentTest: "retry_current_test",
	ChangeLogLevel:   "change_log_level",
	EmergencyStop:    "emergency_stop",
	RequestStatus:    "request_status",
	Heartbeat:        "heartbeat",
}

// String implements the Stringer interface for Kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("unknown(%d)", int(k))
	}

	return kindNames[k]
}

// Valid reports whether k is one of the defined command kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// Terminal reports whether k is one of the mutually exclusive commands that end a run.
// Issuing a terminal command that is already active is a no-op.
func (k Kind) Terminal() bool {
	switch k {
	case Cancel, EndExperiment, EmergencyStop:
		return true
	default:
		return false
	}
}

// ExecutionScoped reports whether k only has meaning while an experiment is running.
// These commands are discarded when an execution is finalized.
func (k Kind) ExecutionScoped() bool {
	switch k {
	case Cancel, EndExperiment, Pause, Resume, StepContinue, EmergencyStop:
		return true
	default:
		return false
	}
}

// Kinds returns every defined command kind in declaration order.
func Kinds() []Kind {
	ks := make([]Kind, 0, int(kindCount))
	for k := Kind(0); k < kindCount; k++ {
		ks = append(ks, k)
	}

	return ks
}

// ParseKind converts a command name into a Kind. Dashes and case are ignored.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, name := range kindNames {
		if name == norm {
			return Kind(k), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
