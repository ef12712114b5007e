// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"math"

	"github.com/matt-FFFFFF/hwloop/internal/executor"
)

// Stats summarises a list of iteration results.
// Valid excludes cancelled, execution failures and skipped iterations, and the rates are
// percentages of Valid rounded to one decimal place.
type Stats struct {
	Total           int
	Pass            int
	Fail            int
	Cancelled       int
	ExecutionFail   int
	Skipped         int
	Other           int
	Valid           int
	PassRate        float64
	FailRate        float64
	LatestStatus    executor.Status
	LatestIteration int
}

// ComputeStats counts results by status.
func ComputeStats(results []executor.Result) Stats {
	s := Stats{Total: len(results)}

	for _, r := range results {
		switch r.Status {
		case executor.StatusPass:
			s.Pass++
		case executor.StatusFail:
			s.Fail++
		case executor.StatusCancelled:
			s.Cancelled++
		case executor.StatusExecutionFail, executor.StatusError:
			s.ExecutionFail++
		case executor.StatusSkipped:
			s.Skipped++
		default:
			s.Other++
		}
	}

	s.Valid = s.Total - s.Cancelled - s.ExecutionFail - s.Skipped
	if s.Valid > 0 {
		s.PassRate = roundRate(float64(s.Pass) / float64(s.Valid) * 100)
		s.FailRate = roundRate(float64(s.Fail) / float64(s.Valid) * 100)
	}

	if len(results) > 0 {
		last := results[len(results)-1]
		s.LatestStatus = last.Status
		s.LatestIteration = last.Iteration
	}

	return s
}

func roundRate(v float64) float64 {
	return math.Round(v*10) / 10
}

// Map renders the statistics for a status event.
func (s Stats) Map() map[string]any {
	latest := string(s.LatestStatus)
	if latest == "" {
		latest = "None"
	}

	return map[string]any{
		"total_completed":      s.Total,
		"pass_count":           s.Pass,
		"fail_count":           s.Fail,
		"cancelled_count":      s.Cancelled,
		"execution_fail_count": s.ExecutionFail,
		"skipped_count":        s.Skipped,
		"other_count":          s.Other,
		"valid_tests":          s.Valid,
		"pass_rate":            s.PassRate,
		"fail_rate":            s.FailRate,
		"latest_status":        latest,
		"latest_iteration":     s.LatestIteration,
	}
}
