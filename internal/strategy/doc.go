// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package strategy drives the iterations of an experiment.
//
// A strategy generates a sequence of points (loop indices, sweep values or a shmoo grid)
// and runs one test per point through a shared driver loop. Between iterations the driver
// checks the controller for operator commands, so pause, step, skip, retry, end and cancel
// all take effect at well defined points and never in the middle of a test.
package strategy
