// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

// Overlap admission: by default two buffers live at the same operator step
// must occupy disjoint byte ranges. The exception is an operator whose
// data flow proves that its output may alias its own input region:
//
//   - ADD runs element-wise in place, so the output may fully alias the
//     input (displacement 0).
//   - CONV2D may alias when the output starts far enough after the input
//     base that, producing outputs in raster order, no input element is
//     overwritten before the last output depending on it was computed. The
//     minimum such shift is the forward-padding length below. When the shift
//     is applied the kernel must instead iterate outputs in reverse, which
//     is what the operator's reverse flag records.
//
// Admission is pairwise and only between a producer operator's input and
// output at the single step where the input dies and the output is born.

// admitsOverlap reports whether kind's output may alias its input.
func admitsOverlap(kind OpKind) bool {
	return kind == OpConv2D || kind == OpAdd
}

// admittedOperator returns the first operator for which prior is an input
// and current is an output, prior dies exactly when current is born, and
// the operator kind admits aliasing. Returns -1 if there is none.
func (p *Planner) admittedOperator(prior, current int) int {
	if p.lastSteps[prior] != p.firstSteps[current] {
		return -1
	}
	producers := p.producerMask(current)
	consumers := p.consumerMask(prior)
	for k := producers.NextSet(0); k != -1; k = producers.NextSet(k + 1) {
		if admitsOverlap(p.opKinds[k]) && consumers.Test(k) {
			return k
		}
	}
	return -1
}

// displacement returns the minimum forward shift, in bytes from the input
// buffer's base, at which operator k's output may be laid out. For ADD this
// is 0 (full alias); for CONV2D it is the forward-padding length adjusted by
// the input/output size difference, reconciling the padding (measured in
// output coordinates) with the prior.offset+prior.size baseline of the scan.
func (p *Planner) displacement(k, prior, current int) int {
	if p.opKinds[k] != OpConv2D {
		return 0
	}
	return p.convPadding[k] + p.sizes[prior] - p.sizes[current]
}

// clampInt returns v limited to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// forwardPaddingLen computes the minimum number of bytes a CONV2D output
// must start after its input base so that raster-order production never
// overwrites an input element before its last dependent output.
//
// Scanning input coordinates in row-major order, the last output coordinate
// reading input (ih, iw) is row ⌊(ih+pad)/stride⌋ and column
// ⌊(iw+pad)/stride⌋, both clamped to the output extent. A running cursor
// reserves the bytes of that output element and of the input element
// itself; whatever the cursor ends past the input's own footprint is the
// required padding.
func forwardPaddingLen(c *Conv2DParams) int {
	end := 0
	for ih := 0; ih < c.InputHeight; ih++ {
		ch := clampInt((ih+c.PaddingHeight)/c.StrideHeight, 0, c.OutputHeight-1)
		for iw := 0; iw < c.InputWidth; iw++ {
			cw := clampInt((iw+c.PaddingWidth)/c.StrideWidth, 0, c.OutputWidth-1)
			lastDependent := (ch*c.OutputWidth + cw + 1) * c.OutputChannels
			if lastDependent > end {
				end = lastDependent
			}
			end += c.InputChannels
		}
	}
	padding := end - c.InputHeight*c.InputWidth*c.InputChannels
	if padding < 0 {
		padding = 0
	}
	return padding
}

// offsetAfterPrior returns the lowest candidate offset for buffer current
// placed above the already-placed buffer at entry priorEntry. The default is
// full disjointness; if the pair is overlap-admitted and the admitted offset
// is lower, that is used instead, and a CONV2D admission with a positive
// shift marks the operator for reverse iteration.
func (p *Planner) offsetAfterPrior(priorEntry int, current int) int {
	entry := &p.entries[priorEntry]
	prior := entry.bufferIndex
	baseline := entry.offset + p.sizes[prior]
	k := p.admittedOperator(prior, current)
	if k == -1 {
		return baseline
	}
	shift := p.displacement(k, prior, current)
	admitted := entry.offset + shift
	if admitted >= baseline {
		// The geometry admits nothing below the disjoint baseline.
		return baseline
	}
	if p.opKinds[k] == OpConv2D && shift > 0 {
		p.opReversed[k] = true
	}
	return admitted
}

// requiredGap returns how many bytes of gap below the entry nextEntry the
// buffer current needs. Normally that is its full size; when nextEntry holds
// the admitted input of the operator producing current, the output may trail
// into the input region and only the forward-padding length (CONV2D) or
// nothing at all (ADD) must stay clear.
func (p *Planner) requiredGap(nextEntry, current, size int) int {
	next := p.entries[nextEntry].bufferIndex
	k := p.admittedOperator(next, current)
	if k == -1 {
		return size
	}
	gap := 0
	if p.opKinds[k] == OpConv2D {
		gap = p.convPadding[k]
	}
	if gap > size {
		gap = size
	}
	return gap
}
