// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPlanRendering(t *testing.T) {
	p := New(make([]byte, testScratchSize), 1)
	require.NoError(t, p.AddOperatorInfo(0, OpConv2D, &conv3x3x3To3x3x5))
	require.NoError(t, p.AddBuffer(27, 0, 1, maskOf(1, 0), maskOf(1)))
	require.NoError(t, p.AddBuffer(45, 1, 2, maskOf(1), maskOf(1, 0)))

	plan := p.MemoryPlan()
	require.Contains(t, plan, "0 (id=0): size=27, offset=0, first_used=0 last_used=1")
	require.Contains(t, plan, "1 (id=1): size=45, offset=15, first_used=1 last_used=2")
	require.Contains(t, plan, "Arena high-water mark: 60 bytes")

	// One chart row per step 0..2, and the admitted overlap at step 1
	// shows up as collision cells.
	lines := strings.Split(strings.TrimRight(plan, "\n"), "\n")
	var chart []string
	for _, line := range lines {
		if strings.HasPrefix(line, " ") {
			chart = append(chart, line)
		}
	}
	require.Len(t, chart, 3)
	require.Contains(t, chart[1], "!")
	require.NotContains(t, chart[0], "!")
}

func TestMemoryPlanEmpty(t *testing.T) {
	p := New(make([]byte, testScratchSize), 0)
	require.Equal(t, "(no buffers planned)\n", p.MemoryPlan())
}

func TestOrdinalCharacter(t *testing.T) {
	require.Equal(t, byte('0'), ordinalCharacter(0))
	require.Equal(t, byte('9'), ordinalCharacter(9))
	require.Equal(t, byte('a'), ordinalCharacter(10))
	require.Equal(t, byte('z'), ordinalCharacter(35))
	require.Equal(t, byte('A'), ordinalCharacter(36))
	require.Equal(t, byte('Z'), ordinalCharacter(61))
	require.Equal(t, byte('*'), ordinalCharacter(62))
}
