// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package progress carries status updates from the experiment worker and the thread
// supervisor to whatever is presenting them. An update is an event name plus a data map.
//
// Reporters must never block the worker: the channel reporter drops events when its
// buffer is full, and Send recovers from a reporter that panics.
package progress
