// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"testing"

	"github.com/matt-FFFFFF/hwloop/internal/executor"
	"github.com/stretchr/testify/assert"
)

func results(statuses ...executor.Status) []executor.Result {
	out := make([]executor.Result, len(statuses))
	for i, s := range statuses {
		out[i] = executor.Result{Iteration: i + 1, Status: s}
	}

	return out
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		in   []executor.Result
		want Stats
	}{
		{
			name: "empty",
			want: Stats{},
		},
		{
			name: "mixed",
			in: results(
				executor.StatusPass, executor.StatusPass, executor.StatusFail,
				executor.StatusCancelled, executor.StatusExecutionFail, executor.StatusError,
				executor.StatusSkipped, "MARGINAL",
			),
			want: Stats{
				Total:           8,
				Pass:            2,
				Fail:            1,
				Cancelled:       1,
				ExecutionFail:   2,
				Skipped:         1,
				Other:           1,
				Valid:           4,
				PassRate:        50,
				FailRate:        25,
				LatestStatus:    "MARGINAL",
				LatestIteration: 8,
			},
		},
		{
			name: "rates are rounded",
			in:   results(executor.StatusPass, executor.StatusFail, executor.StatusFail),
			want: Stats{
				Total:           3,
				Pass:            1,
				Fail:            2,
				Valid:           3,
				PassRate:        33.3,
				FailRate:        66.7,
				LatestStatus:    executor.StatusFail,
				LatestIteration: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.in))
		})
	}
}

func TestStatsMap(t *testing.T) {
	m := ComputeStats(nil).Map()
	assert.Equal(t, "None", m["latest_status"])
	assert.Equal(t, 0, m["total_completed"])

	m = ComputeStats(results(executor.StatusPass)).Map()
	assert.Equal(t, "PASS", m["latest_status"])
	assert.InDelta(t, 100.0, m["pass_rate"], 0.001)
	assert.Equal(t, 1, m["valid_tests"])
}

func TestAxisValues(t *testing.T) {
	tests := []struct {
		name    string
		axis    Axis
		want    []float64
		wantErr error
	}{
		{
			name: "frequency inclusive",
			axis: Axis{Parameter: executor.Frequency, Domain: executor.IA, Start: 100, End: 200, Step: 25},
			want: []float64{100, 125, 150, 175, 200},
		},
		{
			name: "frequency misaligned end is visited",
			axis: Axis{Parameter: executor.Frequency, Domain: executor.CFC, Start: 100, End: 210, Step: 25},
			want: []float64{100, 125, 150, 175, 200, 210},
		},
		{
			name: "frequency end one past a step",
			axis: Axis{Parameter: executor.Frequency, Domain: executor.IA, Start: 100, End: 201, Step: 25},
			want: []float64{100, 125, 150, 175, 200, 201},
		},
		{
			name: "frequency single value",
			axis: Axis{Parameter: executor.Frequency, Domain: executor.IA, Start: 30, End: 30, Step: 5},
			want: []float64{30},
		},
		{
			name: "voltage with tolerance",
			axis: Axis{Parameter: executor.Voltage, Domain: executor.IA, Start: 0.70, End: 0.85, Step: 0.05},
			want: []float64{0.70, 0.75, 0.80, 0.85},
		},
		{
			name: "voltage never passes end",
			axis: Axis{Parameter: executor.Voltage, Domain: executor.IA, Start: 0.70, End: 0.84, Step: 0.05},
			want: []float64{0.70, 0.75, 0.80, 0.84},
		},
		{
			name: "voltage fine step",
			axis: Axis{Parameter: executor.Voltage, Domain: executor.CFC, Start: 0.9, End: 0.903, Step: 0.001},
			want: []float64{0.9, 0.901, 0.902, 0.903},
		},
		{
			name:    "zero step",
			axis:    Axis{Parameter: executor.Voltage, Domain: executor.IA, Start: 0.7, End: 0.8},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "fractional frequency step",
			axis:    Axis{Parameter: executor.Frequency, Domain: executor.IA, Start: 1, End: 2, Step: 0.5},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "start after end",
			axis:    Axis{Parameter: executor.Frequency, Domain: executor.IA, Start: 300, End: 200, Step: 10},
			wantErr: ErrInvalidRange,
		},
		{
			name:    "unknown domain",
			axis:    Axis{Parameter: executor.Voltage, Domain: "gt", Start: 1, End: 2, Step: 1},
			wantErr: executor.ErrUnknownDomain,
		},
		{
			name:    "unknown parameter",
			axis:    Axis{Parameter: "current", Domain: executor.IA, Start: 1, End: 2, Step: 1},
			wantErr: executor.ErrUnknownParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.axis.Values()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
