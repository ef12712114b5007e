// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package executor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnknownParameter is returned for a parameter that is not frequency or voltage.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrUnknownDomain is returned for a domain that is not ia or cfc.
	ErrUnknownDomain = errors.New("unknown domain")
)

// Parameter is a tunable quantity of the device under test.
type Parameter string

const (
	// Frequency is a clock ratio, always applied as an integer.
	Frequency Parameter = "frequency"
	// Voltage is a rail voltage in volts.
	Voltage Parameter = "voltage"
)

// Domain is the part of the device a parameter applies to.
type Domain string

const (
	// IA is the core domain.
	IA Domain = "ia"
	// CFC is the uncore/fabric domain.
	CFC Domain = "cfc"
)

// ParseParameter parses a parameter name.
func ParseParameter(s string) (Parameter, error) {
	switch p := Parameter(strings.ToLower(strings.TrimSpace(s))); p {
	case Frequency, Voltage:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownParameter, s)
	}
}

// ParseDomain parses a domain name.
func ParseDomain(s string) (Domain, error) {
	switch d := Domain(strings.ToLower(strings.TrimSpace(s))); d {
	case IA, CFC:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
	}
}

// Config is the configuration of one test iteration.
// A zero frequency or voltage means the platform default.
type Config struct {
	Name        string
	TestNumber  int
	Iteration   int
	FreqIA      int
	FreqCFC     int
	VoltIA      float64
	VoltCFC     float64
	Reset       bool
	ResetOnPass bool
}

// Set routes value into the field selected by parameter and domain.
// Frequencies are rounded to the nearest integer.
func (c *Config) Set(p Parameter, d Domain, value float64) error {
	switch p {
	case Frequency:
		f := int(math.Round(value))

		switch d {
		case IA:
			c.FreqIA = f
		case CFC:
			c.FreqCFC = f
		default:
			return fmt.Errorf("%w: %q", ErrUnknownDomain, d)
		}
	case Voltage:
		switch d {
		case IA:
			c.VoltIA = value
		case CFC:
			c.VoltCFC = value
		default:
			return fmt.Errorf("%w: %q", ErrUnknownDomain, d)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParameter, p)
	}

	return nil
}

// EnvPrefix prefixes every environment variable produced by Environ.
const EnvPrefix = "HWLOOP_"

// Environ renders the configuration as KEY=value pairs for a child process.
// Unset frequencies and voltages are omitted.
func (c Config) Environ() []string {
	env := []string{
		EnvPrefix + "EXPERIMENT=" + c.Name,
		EnvPrefix + "TEST_NUMBER=" + strconv.Itoa(c.TestNumber),
		EnvPrefix + "ITERATION=" + strconv.Itoa(c.Iteration),
		EnvPrefix + "RESET=" + strconv.FormatBool(c.Reset),
		EnvPrefix + "RESET_ON_PASS=" + strconv.FormatBool(c.ResetOnPass),
	}

	if c.FreqIA != 0 {
		env = append(env, EnvPrefix+"FREQ_IA="+strconv.Itoa(c.FreqIA))
	}

	if c.FreqCFC != 0 {
		env = append(env, EnvPrefix+"FREQ_CFC="+strconv.Itoa(c.FreqCFC))
	}

	if c.VoltIA != 0 {
		env = append(env, EnvPrefix+"VOLT_IA="+strconv.FormatFloat(c.VoltIA, 'f', -1, 64))
	}

	if c.VoltCFC != 0 {
		env = append(env, EnvPrefix+"VOLT_CFC="+strconv.FormatFloat(c.VoltCFC, 'f', -1, 64))
	}

	return env
}
