// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// chartWidth is the number of columns the memory axis is scaled into.
const chartWidth = 80

// ordinalCharacter returns the character standing for buffer i in the chart.
func ordinalCharacter(i int) byte {
	switch {
	case i < 10:
		return byte('0' + i)
	case i < 36:
		return byte('a' + i - 10)
	case i < 62:
		return byte('A' + i - 36)
	}
	return '*'
}

// MemoryPlan renders the plan as text: one summary line per buffer followed
// by an ASCII chart with one row per operator step, the memory axis scaled
// to 80 columns. Cells covered by two buffers at once print '!'; with
// overlap admission in play those are expected, not necessarily errors.
func (p *Planner) MemoryPlan() string {
	p.calculateOffsetsIfNeeded()
	var b strings.Builder

	maxSize := chartWidth
	maxTime := 0
	for i := 0; i < p.bufferCount; i++ {
		fmt.Fprintf(&b, "%c (id=%d): size=%d, offset=%d, first_used=%d last_used=%d\n",
			ordinalCharacter(i), i, p.sizes[i], p.offsets[i], p.firstSteps[i], p.lastSteps[i])
		if end := p.offsets[i] + p.sizes[i]; end > maxSize {
			maxSize = end
		}
		if p.lastSteps[i] > maxTime {
			maxTime = p.lastSteps[i]
		}
	}
	if p.bufferCount == 0 {
		return "(no buffers planned)\n"
	}

	var line [chartWidth]byte
	for t := 0; t <= maxTime; t++ {
		for c := range line {
			line[c] = '.'
		}
		memoryUse := 0
		for i := 0; i < p.bufferCount; i++ {
			if t < p.firstSteps[i] || t > p.lastSteps[i] {
				continue
			}
			offset := p.offsets[i]
			if offset < 0 {
				continue
			}
			size := p.sizes[i]
			memoryUse += size
			lineStart := offset * chartWidth / maxSize
			lineEnd := (offset + size) * chartWidth / maxSize
			for n := lineStart; n < lineEnd; n++ {
				if line[n] == '.' {
					line[n] = ordinalCharacter(i)
				} else {
					line[n] = '!'
				}
			}
		}
		fmt.Fprintf(&b, "%2d: %s (%s)\n", t, line[:], humanize.IBytes(uint64(memoryUse)))
	}
	fmt.Fprintf(&b, "Arena high-water mark: %d bytes (%s)\n",
		p.GetMaximumMemorySize(), humanize.IBytes(uint64(p.GetMaximumMemorySize())))
	return b.String()
}

// PrintMemoryPlan writes the MemoryPlan rendering to the log, line by line.
func (p *Planner) PrintMemoryPlan() {
	for _, line := range strings.Split(strings.TrimRight(p.MemoryPlan(), "\n"), "\n") {
		klog.Info(line)
	}
}
