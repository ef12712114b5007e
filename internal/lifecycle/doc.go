// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package lifecycle supervises the goroutines that drive an experiment.
//
// A worker is registered as a Handle, started, and later stopped in phases. A graceful
// shutdown cancels the worker's context, runs cleanup callbacks and joins with a timeout.
// A worker that does not exit is force stopped and joined again. A worker that still does
// not exit is abandoned: Go cannot kill a goroutine, so the record is kept and reported as
// a leak rather than silently dropped.
//
// EmergencyShutdownAll and ForceKillProcessTree are the last-resort paths for an operator
// emergency stop.
package lifecycle
