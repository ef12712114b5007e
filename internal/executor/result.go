// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import "time"

// Status is the outcome of one iteration.
type Status string

const (
	// StatusPass means the test ran and passed.
	StatusPass Status = "PASS"
	// StatusFail means the test ran and the device failed it.
	StatusFail Status = "FAIL"
	// StatusCancelled means the iteration was stopped by an operator command or shutdown.
	StatusCancelled Status = "CANCELLED"
	// StatusExecutionFail means the test could not be run or crashed.
	StatusExecutionFail Status = "EXECUTION_FAIL"
	// StatusError is an unexpected error in the harness itself.
	StatusError Status = "ERROR"
	// StatusSkipped means the iteration was skipped on request.
	StatusSkipped Status = "SKIPPED"
)

// Result is the record of one iteration.
type Result struct {
	Iteration  int
	Label      string
	Status     Status
	Name       string
	Scratchpad string // Short diagnostic text, typically the last line of output.
	Seed       string
	LogPath    string
	Timestamp  time.Time
	Duration   time.Duration
	Config     Config
	Err        error
}
