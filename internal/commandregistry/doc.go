// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package commandregistry coordinates operator commands with the worker that runs an experiment.
//
// A Registry holds the set of active commands, their payloads and callbacks, a bounded
// command history and the execution state of the current experiment. Commands are
// intent markers rather than queued events: at most one command of each kind is active,
// and it stays active until the worker acknowledges it.
//
// The history is an audit log only. Control decisions are always taken from the active set.
package commandregistry
