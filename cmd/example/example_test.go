// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package example

import (
	"bytes"
	"context"
	"testing"

	"github.com/matt-FFFFFF/hwloop/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleCmd(t *testing.T) {
	var out bytes.Buffer

	ExampleCmd.Writer = &out
	require.NoError(t, ExampleCmd.Run(context.Background(), []string{"example"}))

	def, err := experiment.Parse("example.yaml", out.Bytes())
	require.NoError(t, err)
	assert.NoError(t, def.Validate())
	assert.Equal(t, "vmin_sweep", def.Name)
}
