// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package commandregistry

import "time"

// DefaultLogLevel is the log level recorded in a fresh ExecutionState.
const DefaultLogLevel = "INFO"

// ExecutionState is the execution state shared between the worker and the control surface.
// It is always read and written under the registry lock.
type ExecutionState struct {
	ExecutionActive   bool
	CurrentExperiment string
	CurrentIteration  int
	TotalIterations   int
	StepModeEnabled   bool
	WaitingForStep    bool
	WaitingForCommand bool
	LogLevel          string
	FrameworkReady    bool
}

func idleState(logLevel string) ExecutionState {
	return ExecutionState{
		LogLevel:       logLevel,
		FrameworkReady: true,
	}
}

// Snapshot is a consistent view of the registry taken under a single lock acquisition.
type Snapshot struct {
	State         ExecutionState
	Active        []Kind
	LastHeartbeat time.Time
	HistoryLen    int
}
