// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package executor runs a single test iteration against a test configuration.
//
// An Executor is synchronous: Run returns when the iteration has finished, or when its
// context is done. Two implementations are provided. FunctionExecutor wraps a Go function
// and converts panics into EXECUTION_FAIL results. ScriptExecutor runs an external program
// once per iteration, passing the configuration through HWLOOP_* environment variables, and
// classifies the result from its exit code and output markers.
package executor
