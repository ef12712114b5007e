// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matt-FFFFFF/hwloop/internal/commandregistry"
	"github.com/matt-FFFFFF/hwloop/internal/lifecycle"
	"github.com/peterh/liner"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	lines   []string
	end     error
	history []string
	closed  bool
}

func (p *scriptedPrompter) Prompt(string) (string, error) {
	if len(p.lines) == 0 {
		return "", p.end
	}

	l := p.lines[0]
	p.lines = p.lines[1:]

	return l, nil
}

func (p *scriptedPrompter) AppendHistory(item string) { p.history = append(p.history, item) }

func (p *scriptedPrompter) Close() error {
	p.closed = true
	return nil
}

func newConsole(t *testing.T, opts ...Option) (*Console, *commandregistry.Registry, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer

	reg := commandregistry.New(context.Background())

	return New(context.Background(), reg, append([]Option{WithOutput(&out)}, opts...)...), reg, &out
}

func TestExecute_IssuesCommands(t *testing.T) {
	tests := []struct {
		line string
		kind commandregistry.Kind
	}{
		{line: "cancel", kind: commandregistry.Cancel},
		{line: "end bad silicon", kind: commandregistry.EndExperiment},
		{line: "pause", kind: commandregistry.Pause},
		{line: "step", kind: commandregistry.StepContinue},
		{line: "step on", kind: commandregistry.EnableStepMode},
		{line: "skip", kind: commandregistry.SkipCurrentTest},
		{line: "RETRY", kind: commandregistry.RetryCurrentTest},
		{line: "estop", kind: commandregistry.EmergencyStop},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c, reg, out := newConsole(t)

			require.NoError(t, c.Execute(tt.line))
			assert.True(t, reg.Has(tt.kind))
			assert.Contains(t, out.String(), tt.kind.String()+" issued")
		})
	}
}

func TestExecute_ReasonPayload(t *testing.T) {
	c, reg, _ := newConsole(t)

	require.NoError(t, c.Execute("end  bad   silicon"))
	assert.Equal(t, "bad silicon", reg.CommandData(commandregistry.EndExperiment)["reason"])

	require.NoError(t, c.Execute("cancel"))
	assert.Equal(t, operatorReason, reg.CommandData(commandregistry.Cancel)["reason"])
}

func TestExecute_ResumeClearsPause(t *testing.T) {
	c, reg, _ := newConsole(t)

	require.NoError(t, c.Execute("pause"))
	assert.True(t, reg.IsPaused())

	require.NoError(t, c.Execute("resume"))
	assert.False(t, reg.IsPaused())
}

func TestExecute_StepModeToggle(t *testing.T) {
	c, reg, _ := newConsole(t)

	require.NoError(t, c.Execute("step on"))
	assert.True(t, reg.IsStepModeEnabled())

	require.NoError(t, c.Execute("step OFF"))
	assert.False(t, reg.IsStepModeEnabled())

	assert.ErrorIs(t, c.Execute("step sideways"), ErrInvalidArgument)
}

func TestExecute_LogLevel(t *testing.T) {
	c, reg, _ := newConsole(t)

	assert.ErrorIs(t, c.Execute("loglevel"), ErrMissingArgument)
	assert.ErrorIs(t, c.Execute("loglevel chatty"), ErrInvalidArgument)
	assert.False(t, reg.Has(commandregistry.ChangeLogLevel))

	require.NoError(t, c.Execute("loglevel debug"))
	assert.Equal(t, "debug", reg.State().LogLevel)
}

func TestExecute_Errors(t *testing.T) {
	c, _, _ := newConsole(t)

	assert.NoError(t, c.Execute("   "))
	assert.ErrorIs(t, c.Execute("reboot"), ErrUnknownCommand)
	assert.ErrorIs(t, c.Execute("quit"), ErrQuit)
	assert.ErrorIs(t, c.Execute("exit"), ErrQuit)
	assert.ErrorIs(t, c.Execute("history 0"), ErrInvalidArgument)
	assert.ErrorIs(t, c.Execute("history many"), ErrInvalidArgument)
}

func TestExecute_Status(t *testing.T) {
	c, reg, out := newConsole(t)

	reg.Update(func(s *commandregistry.ExecutionState) {
		s.ExecutionActive = true
		s.CurrentExperiment = "vmin"
		s.CurrentIteration = 3
		s.TotalIterations = 10
	})
	reg.Pause("")

	require.NoError(t, c.Execute("status"))
	assert.Contains(t, out.String(), "experiment: vmin")
	assert.Contains(t, out.String(), "iteration: 3/10")
	assert.Contains(t, out.String(), "active commands: pause")
	assert.Regexp(t, `last heartbeat: [0-9.]+[mµn]?s ago`, out.String())
}

func TestExecute_History(t *testing.T) {
	c, reg, out := newConsole(t)

	require.NoError(t, c.Execute("history"))
	assert.Contains(t, out.String(), "no commands issued")

	reg.Pause("")
	reg.Resume("")
	reg.Acknowledge(commandregistry.Resume, "ok")
	out.Reset()

	require.NoError(t, c.Execute("history 1"))
	assert.Contains(t, out.String(), "resume")
	assert.Contains(t, out.String(), "acknowledged")
	assert.NotContains(t, out.String(), "pause")
}

func TestExecute_Help(t *testing.T) {
	c, _, out := newConsole(t)

	require.NoError(t, c.Execute("help"))

	for name, cmd := range commands {
		if name == "exit" {
			continue
		}

		assert.Contains(t, out.String(), cmd.usage)
	}
}

func TestExecute_ThreadsWithoutSupervisor(t *testing.T) {
	c, _, out := newConsole(t)

	require.NoError(t, c.Execute("threads"))
	assert.Contains(t, out.String(), "no supervisor attached")
}

func TestExecute_EmergencyStopShutsDownWorkers(t *testing.T) {
	sup := lifecycle.New(context.Background(), lifecycle.WithTimeouts(lifecycle.Timeouts{
		EmergencyGrace: 50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}))

	release := make(chan struct{})
	defer close(release)

	sup.Register(lifecycle.NewHandle(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}), "cooperative", nil)
	sup.Register(lifecycle.NewHandle(func(context.Context) error {
		<-release
		return nil
	}), "stubborn", nil)
	require.True(t, sup.Start("cooperative"))
	require.True(t, sup.Start("stubborn"))

	c, reg, out := newConsole(t, WithSupervisor(sup))

	require.NoError(t, c.Execute("threads"))
	assert.Contains(t, out.String(), "cooperative")

	require.NoError(t, c.Execute("estop"))
	assert.True(t, reg.Has(commandregistry.EmergencyStop))
	assert.Equal(t, []string{"stubborn"}, sup.Abandoned())
	assert.Contains(t, out.String(), "abandoned workers: stubborn")
	assert.False(t, sup.IsThreadActive("cooperative"))
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		end     error
		wantErr bool
		history []string
	}{
		{
			name:    "quit",
			lines:   []string{"pause", "", "bogus", "quit", "cancel"},
			history: []string{"pause", "bogus", "quit"},
		},
		{name: "ctrl-c", lines: []string{"pause"}, end: liner.ErrPromptAborted, history: []string{"pause"}},
		{name: "ctrl-d", end: io.EOF},
		{name: "read failure", end: errors.New("tty gone"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedPrompter{lines: tt.lines, end: tt.end}
			stubs := gostub.Stub(&newPrompter, func() prompter { return p })
			defer stubs.Reset()

			c, reg, out := newConsole(t)

			err := c.Run(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.True(t, p.closed)
			assert.Equal(t, tt.history, p.history)
			assert.False(t, reg.Has(commandregistry.Cancel), "lines after quit must not run")

			if len(tt.lines) > 2 {
				assert.Contains(t, out.String(), "error: unknown command")
			}
		})
	}
}

func TestRun_StopsWhenContextDone(t *testing.T) {
	p := &scriptedPrompter{lines: []string{"pause"}}
	stubs := gostub.Stub(&newPrompter, func() prompter { return p })
	defer stubs.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, reg, _ := newConsole(t)
	require.NoError(t, c.Run(ctx))
	assert.False(t, reg.Has(commandregistry.Pause))
}

// blockingPrompter holds every prompt open until released, like an idle operator.
type blockingPrompter struct {
	prompted chan struct{}
	release  chan struct{}
	closed   atomic.Bool
}

func (p *blockingPrompter) Prompt(string) (string, error) {
	p.prompted <- struct{}{}
	<-p.release

	return "", io.EOF
}

func (p *blockingPrompter) AppendHistory(string) {}

func (p *blockingPrompter) Close() error {
	p.closed.Store(true)
	return nil
}

func TestRun_RestoresTerminalWhileWaitingForInput(t *testing.T) {
	p := &blockingPrompter{prompted: make(chan struct{}, 1), release: make(chan struct{})}
	stubs := gostub.Stub(&newPrompter, func() prompter { return p })
	defer stubs.Reset()
	defer close(p.release)

	ctx, cancel := context.WithCancel(context.Background())
	c, _, _ := newConsole(t)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	<-p.prompted
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the context was cancelled")
	}

	assert.True(t, p.closed.Load())
}

func TestComplete(t *testing.T) {
	assert.Equal(t, []string{"end", "estop", "exit"}, complete("e"))
	assert.Equal(t, []string{"status", "step"}, complete("ST"))
	assert.Empty(t, complete("zzz"))
}
