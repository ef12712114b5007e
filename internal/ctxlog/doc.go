// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog provides a context-based logger that can be used to log messages
// with different log levels. It uses the slog package for structured logging.
//
// All loggers created by this package share a single level variable. The initial
// level is read from the HWLOOP_LOG_LEVEL environment variable and can be changed
// at runtime with SetLevel, which is how an operator's change-log-level command
// takes effect while an experiment is running.
package ctxlog
