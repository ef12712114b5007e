// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package experiment loads experiment definitions and turns them into a runnable plan.
//
// A definition is written in YAML, or in HCL when the file name ends in .hcl. HCL files can
// read environment variables through the env object, e.g. env.HOME.
package experiment
