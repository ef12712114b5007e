// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package strategy

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/matt-FFFFFF/hwloop/internal/executor"
)

var (
	// ErrInvalidStep is returned when a sweep step is not positive.
	ErrInvalidStep = errors.New("sweep step must be greater than zero")
	// ErrInvalidRange is returned when a sweep starts above its end.
	ErrInvalidRange = errors.New("sweep start must not be greater than end")
	// ErrInvalidCount is returned when a loop count is less than one.
	ErrInvalidCount = errors.New("loop count must be at least one")
)

const voltageDecimals = 1e5

// Axis is one swept parameter.
type Axis struct {
	Parameter executor.Parameter
	Domain    executor.Domain
	Start     float64
	End       float64
	Step      float64
}

// Validate checks the parameter, domain and range of the axis.
func (a Axis) Validate() error {
	if _, err := executor.ParseParameter(string(a.Parameter)); err != nil {
		return err
	}

	if _, err := executor.ParseDomain(string(a.Domain)); err != nil {
		return err
	}

	step := a.Step
	if a.Parameter == executor.Frequency {
		step = float64(int(a.Step))
	}

	if step <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidStep, a.Step)
	}

	if a.Start > a.End {
		return fmt.Errorf("%w: %v > %v", ErrInvalidRange, a.Start, a.End)
	}

	return nil
}

// Values returns the sequence of values the axis visits.
//
// Frequencies are integers from start in whole steps. Voltages start at start and advance
// by step while the value is no more than half a step past end, each rounded to five decimal
// places. In both cases a last value past end is replaced by end, so end is always visited
// and never exceeded.
func (a Axis) Values() ([]float64, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	var out []float64

	if a.Parameter == executor.Frequency {
		start, end, step := int(a.Start), int(a.End), int(a.Step)
		out = make([]float64, 0, (end-start)/step+2)

		for v := start; v < end+step; v += step {
			out = append(out, float64(v))
		}

		return clampLast(out, float64(end)), nil
	}

	for cur := a.Start; cur <= a.End+a.Step/2; cur += a.Step {
		out = append(out, math.Round(cur*voltageDecimals)/voltageDecimals)
	}

	return clampLast(out, a.End), nil
}

func clampLast(values []float64, end float64) []float64 {
	if n := len(values); n > 0 && values[n-1] > end {
		values[n-1] = end
	}

	return values
}

// format renders a value of this axis for labels and events.
func (a Axis) format(v float64) string {
	if a.Parameter == executor.Frequency {
		return strconv.Itoa(int(v))
	}

	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String implements the Stringer interface for Axis.
func (a Axis) String() string {
	return fmt.Sprintf("%s_%s", a.Parameter, a.Domain)
}
