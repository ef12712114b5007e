// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build linux

package lifecycle

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceKillProcessTree(t *testing.T) {
	var selfCalls int

	stubs := gostub.Stub(&terminateSelf, func(context.Context) error {
		selfCalls++
		return nil
	})
	defer stubs.Reset()

	// A child that ignores SIGTERM so the kill stage is exercised.
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	// Give the shell time to fork its child.
	time.Sleep(100 * time.Millisecond)

	s, _ := newTestSupervisor(t)
	assert.True(t, s.ForceKillProcessTree())
	assert.Equal(t, 1, selfCalls)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("child process survived the process tree kill")
	}
}

func TestForceKillProcessTree_SelfTerminationFails(t *testing.T) {
	stubs := gostub.Stub(&terminateSelf, func(context.Context) error {
		return errors.New("permission denied")
	})
	defer stubs.Reset()

	s, _ := newTestSupervisor(t)
	assert.False(t, s.ForceKillProcessTree())
}
