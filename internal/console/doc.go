// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package console is the interactive operator prompt.
// Each line typed at the prompt is turned into a command on the registry,
// so the operator can pause, step, skip or stop a running experiment.
package console
