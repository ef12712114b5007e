// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package experiment

// Definition is the root of an experiment file.
type Definition struct {
	Name       string           `yaml:"name" hcl:"name,optional"`
	TestNumber int              `yaml:"test_number,omitempty" hcl:"test_number,optional"`
	Strategy   *StrategyBlock   `yaml:"strategy" hcl:"strategy,block"`
	Test       *TestBlock       `yaml:"test,omitempty" hcl:"test,block"`
	Executor   *ExecutorBlock   `yaml:"executor" hcl:"executor,block"`
	Control    *ControlBlock    `yaml:"control,omitempty" hcl:"control,block"`
	Supervisor *SupervisorBlock `yaml:"supervisor,omitempty" hcl:"supervisor,block"`
}

// StrategyBlock selects and configures the iteration strategy.
type StrategyBlock struct {
	Type  string      `yaml:"type" hcl:"type,optional"` // loops, sweep or shmoo
	Loops int         `yaml:"loops,omitempty" hcl:"loops,optional"`
	Sweep *SweepBlock `yaml:"sweep,omitempty" hcl:"sweep,block"`
	Shmoo *ShmooBlock `yaml:"shmoo,omitempty" hcl:"shmoo,block"`
	Delay string      `yaml:"delay,omitempty" hcl:"delay,optional"`
}

// SweepBlock is one swept parameter.
type SweepBlock struct {
	Type   string  `yaml:"type" hcl:"type,optional"` // frequency or voltage
	Domain string  `yaml:"domain" hcl:"domain,optional"`
	Start  float64 `yaml:"start" hcl:"start,optional"`
	End    float64 `yaml:"end" hcl:"end,optional"`
	Step   float64 `yaml:"step" hcl:"step,optional"`
}

// ShmooBlock is a two dimensional sweep. Y is the outer axis.
type ShmooBlock struct {
	X *SweepBlock `yaml:"x" hcl:"x,block"`
	Y *SweepBlock `yaml:"y" hcl:"y,block"`
}

// TestBlock is the initial test configuration.
type TestBlock struct {
	FreqIA      int     `yaml:"freq_ia,omitempty" hcl:"freq_ia,optional"`
	FreqCFC     int     `yaml:"freq_cfc,omitempty" hcl:"freq_cfc,optional"`
	VoltIA      float64 `yaml:"volt_ia,omitempty" hcl:"volt_ia,optional"`
	VoltCFC     float64 `yaml:"volt_cfc,omitempty" hcl:"volt_cfc,optional"`
	Reset       bool    `yaml:"reset,omitempty" hcl:"reset,optional"`
	ResetOnPass bool    `yaml:"reset_on_pass,omitempty" hcl:"reset_on_pass,optional"`
}

// ExecutorBlock describes the program run once per iteration.
type ExecutorBlock struct {
	Command    string            `yaml:"command" hcl:"command,optional"`
	Args       []string          `yaml:"args,omitempty" hcl:"args,optional"`
	Env        map[string]string `yaml:"env,omitempty" hcl:"env,optional"`
	Dir        string            `yaml:"dir,omitempty" hcl:"dir,optional"`
	PassString string            `yaml:"pass_string,omitempty" hcl:"pass_string,optional"`
	FailString string            `yaml:"fail_string,omitempty" hcl:"fail_string,optional"`
	Timeout    string            `yaml:"timeout,omitempty" hcl:"timeout,optional"`
	LogDir     string            `yaml:"log_dir,omitempty" hcl:"log_dir,optional"`
}

// ControlBlock configures how operator commands are polled.
type ControlBlock struct {
	StepMode     bool   `yaml:"step_mode,omitempty" hcl:"step_mode,optional"`
	PollInterval string `yaml:"poll_interval,omitempty" hcl:"poll_interval,optional"`
	StepTimeout  string `yaml:"step_timeout,omitempty" hcl:"step_timeout,optional"`
}

// SupervisorBlock overrides the worker shutdown timeouts.
type SupervisorBlock struct {
	GracefulTimeout string `yaml:"graceful_timeout,omitempty" hcl:"graceful_timeout,optional"`
	ForceTimeout    string `yaml:"force_timeout,omitempty" hcl:"force_timeout,optional"`
	CleanupTimeout  string `yaml:"cleanup_timeout,omitempty" hcl:"cleanup_timeout,optional"`
}

// Example returns a complete definition used by the example command.
func Example() *Definition {
	return &Definition{
		Name:       "vmin_sweep",
		TestNumber: 1,
		Strategy: &StrategyBlock{
			Type: "sweep",
			Sweep: &SweepBlock{
				Type:   "voltage",
				Domain: "ia",
				Start:  0.70,
				End:    0.85,
				Step:   0.05,
			},
			Delay: "10s",
		},
		Test: &TestBlock{
			FreqIA:      32,
			FreqCFC:     24,
			ResetOnPass: false,
		},
		Executor: &ExecutorBlock{
			Command:    "./run_test.sh",
			Args:       []string{"--quick"},
			Env:        map[string]string{"BOARD": "sut-01"},
			PassString: "Test Complete",
			FailString: "MCA",
			Timeout:    "30m",
			LogDir:     "logs",
		},
		Control: &ControlBlock{
			PollInterval: "500ms",
		},
		Supervisor: &SupervisorBlock{
			GracefulTimeout: "5s",
			ForceTimeout:    "10s",
			CleanupTimeout:  "15s",
		},
	}
}
