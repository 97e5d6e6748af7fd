// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// memplan plans the arena layout of a tensor-graph model description and
// reports the resulting placements.
//
// Usage:
//
//	memplan [flags] model.json
//
// The model description format is documented in the modelspec package. By
// default the tool prints one table with the placement of every tensor and
// the arena high-water mark; see -chart and -check for the ASCII memory
// chart and the overlap self-check.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/memplan/modelspec"
)

var (
	flagScratch = flag.Int("scratch", 16*1024, "Size in bytes of the scratch region the planner works in. "+
		"Enlarge it if planning fails with a capacity error.")
	flagChart = flag.Bool("chart", false, "Print the ASCII time vs. memory chart of the plan.")
	flagCheck = flag.Bool("check", false, "Run the O(N²) overlap self-check and report every overlapping pair. "+
		"Overlap-admitted pairs are reported too.")
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlanTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == 1:
				return headerRowStyle
			case row%2 == 0:
				return oddRowStyle
			default:
				return evenRowStyle
			}
		})
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one model description file. See 'memplan -help'.")
		os.Exit(1)
	}
	report(args[0])
}

func report(path string) {
	model := must.M1(modelspec.ReadFile(path))
	p := must.M1(model.Plan(make([]byte, *flagScratch)))

	fmt.Println(titleStyle.Render("Memory plan"))
	table := newPlanTable()
	table.Row("Tensor", "Size", "Live", "Offset", "Pinned")
	for i, tensor := range model.Tensors {
		offset := must.M1(p.GetOffsetForBuffer(i))
		pinned := ""
		if tensor.PinnedOffset != nil {
			pinned = "yes"
		}
		table.Row(
			strconv.Itoa(i),
			fmt.Sprintf("%d (%s)", tensor.Size, humanize.IBytes(uint64(tensor.Size))),
			fmt.Sprintf("[%d,%d]", tensor.FirstStep, tensor.LastStep),
			strconv.Itoa(offset),
			pinned,
		)
	}
	fmt.Println(table.Render())
	fmt.Printf("Arena high-water mark: %d bytes (%s)\n",
		p.GetMaximumMemorySize(), humanize.IBytes(uint64(p.GetMaximumMemorySize())))

	var reversed []int
	for id := range model.Operators {
		if must.M1(p.OperatorReversed(id)) {
			reversed = append(reversed, id)
		}
	}
	if len(reversed) > 0 {
		fmt.Printf("Operators requiring reverse output iteration: %v\n", reversed)
	}

	if *flagChart {
		fmt.Println(titleStyle.Render("Chart"))
		fmt.Print(p.MemoryPlan())
	}

	if *flagCheck {
		if p.DoAnyBuffersOverlap() {
			fmt.Println("Overlapping pairs found (admitted overlaps included); details in the log.")
		} else {
			fmt.Println("No overlapping pairs.")
		}
	}
}
