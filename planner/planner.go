// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package planner implements a static memory planner for tensor-graph
// inference on devices without a run-time allocator.
//
// Given buffers with a byte size and a closed live interval of operator
// steps, the planner assigns every buffer a fixed offset inside one
// contiguous arena so that buffers live at the same step occupy disjoint
// byte ranges, except where a producing operator's data flow proves that
// its output may alias its input region (in-place ADD, and convolutions via
// the forward-padding geometry in this package's overlap policy).
//
// Usage:
//   - Construct with New over a caller-owned scratch region; all working
//     state is carved from it up front and nothing is heap-allocated later.
//   - Register operators with AddOperatorInfo and buffers with AddBuffer /
//     AddPinnedBuffer.
//   - Query offsets and the arena high-water mark; the plan is computed
//     lazily on first query and recomputed only after new registrations.
//
// Placement walks buffers ordered by ascending first use (ties: descending
// last use, then insertion order) and slots each into the lowest gap between
// already-placed simultaneously-live buffers that fits. This does not
// guarantee optimal packing (that problem is NP-complete), but it is a
// solid heuristic in practice, and it is deterministic: identical
// registration sequences always produce identical offsets.
//
// A planner instance is single-threaded; distinct instances are independent.
package planner

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/memplan/types/bitset"
)

// OpKind tags the kind of a registered operator. Only the kinds in the
// overlap-admitted set carry meaning for placement; everything else behaves
// as OpOther.
type OpKind int

const (
	// OpOther is any operator with no special placement behaviour.
	OpOther OpKind = iota
	// OpConv2D is a 2-D convolution; it carries Conv2DParams geometry.
	OpConv2D
	// OpAdd is an element-wise addition, admitted for full in-place aliasing.
	OpAdd
	// OpMul is an element-wise multiplication.
	OpMul
)

// String returns the kind's name.
func (k OpKind) String() string {
	switch k {
	case OpConv2D:
		return "CONV_2D"
	case OpAdd:
		return "ADD"
	case OpMul:
		return "MUL"
	default:
		return "OTHER"
	}
}

// Conv2DParams is the geometry of a CONV2D operator, copied by value at
// registration. All values are element counts, not bytes; channels are the
// innermost axis, so one spatial position of the input occupies
// InputChannels contiguous elements.
type Conv2DParams struct {
	InputHeight, InputWidth, InputChannels    int
	FilterHeight, FilterWidth                 int
	OutputHeight, OutputWidth, OutputChannels int
	StrideHeight, StrideWidth                 int
	PaddingHeight, PaddingWidth               int
}

// UnplannedOffset marks a buffer whose offset the planner chooses. Buffers
// added with AddPinnedBuffer carry a client-fixed offset instead.
const UnplannedOffset = -1

// unassigned marks a buffer offset not yet produced by placement.
const unassigned = -1

// Planner assigns arena offsets to buffers. Create with New; the zero value
// is not usable.
//
// All of the planner's working state lives in the scratch region handed to
// New. The region is borrowed for the planner's lifetime: the caller must
// not touch it until it is done with the planner, and may recycle it after
// (typically as the inference arena itself).
type Planner struct {
	operatorCount  int
	maxBufferCount int
	bufferCount    int
	maskWords      int

	// Per-buffer records, registration order.
	sizes          []int
	firstSteps     []int
	lastSteps      []int
	offlineOffsets []int
	consumerWords  []uint64
	producerWords  []uint64

	// Operator table.
	opKinds     []OpKind
	convParams  []Conv2DParams
	convPadding []int
	opReversed  []bool

	// Placement working state and outcome.
	sortFirst []int
	sortLast  []int
	sortIDs   []int
	entries   []listEntry
	offsets   []int

	firstEntryIndex int
	nextFreeEntry   int
	needsPlan       bool
}

// New constructs a planner inside the given scratch region, sized for
// operatorCount operators. It never fails: a region too small for any
// buffer yields a planner whose AddBuffer immediately reports
// ErrCapacityExceeded. Use PerBufferBytes to size the region.
//
// New panics on nil scratch, a negative operator count, or a region too
// small for even the operator table: those are programming errors, not
// runtime conditions.
func New(scratch []byte, operatorCount int) *Planner {
	if scratch == nil {
		exceptions.Panicf("planner.New: scratch region must not be nil")
	}
	if operatorCount < 0 {
		exceptions.Panicf("planner.New: operatorCount=%d must be non-negative", operatorCount)
	}
	p := &Planner{
		operatorCount:   operatorCount,
		maskWords:       bitset.WordsFor(operatorCount),
		firstEntryIndex: nilEntry,
		needsPlan:       true,
	}
	p.maxBufferCount = (len(scratch) - fixedOverheadBytes(operatorCount)) / PerBufferBytes(operatorCount)
	if p.maxBufferCount < 0 {
		p.maxBufferCount = 0
	}

	a := &arena{buf: scratch}
	n := p.maxBufferCount
	p.sizes = a.carveInts(n)
	p.firstSteps = a.carveInts(n)
	p.lastSteps = a.carveInts(n)
	p.offlineOffsets = a.carveInts(n)
	p.consumerWords = a.carveWords(n * p.maskWords)
	p.producerWords = a.carveWords(n * p.maskWords)
	p.sortFirst = a.carveInts(n)
	p.sortLast = a.carveInts(n)
	p.sortIDs = a.carveInts(n)
	p.entries = a.carveEntries(n)
	p.offsets = a.carveInts(n)
	p.opKinds = a.carveKinds(operatorCount)
	p.convParams = a.carveConvParams(operatorCount)
	p.convPadding = a.carveInts(operatorCount)
	p.opReversed = a.carveBools(operatorCount)
	return p
}

// MaxBufferCount returns how many buffers the scratch region given to New
// can hold.
func (p *Planner) MaxBufferCount() int { return p.maxBufferCount }

// GetBufferCount returns how many buffers have been added so far.
func (p *Planner) GetBufferCount() int { return p.bufferCount }

// consumerMask returns the arena-backed view of buffer i's consumer bits.
func (p *Planner) consumerMask(i int) bitset.Set {
	return bitset.FromWords(p.consumerWords[i*p.maskWords:(i+1)*p.maskWords], p.operatorCount)
}

// producerMask returns the arena-backed view of buffer i's producer bits.
func (p *Planner) producerMask(i int) bitset.Set {
	return bitset.FromWords(p.producerWords[i*p.maskWords:(i+1)*p.maskWords], p.operatorCount)
}

// AddOperatorInfo records the kind (and for CONV2D the geometry) of the
// operator at index id. Returns ErrIndexOutOfRange when id is outside the
// operator count declared at construction.
func (p *Planner) AddOperatorInfo(id int, kind OpKind, conv *Conv2DParams) error {
	if id < 0 || id >= p.operatorCount {
		err := errors.Wrapf(ErrIndexOutOfRange, "operator id %d is outside range 0 to %d", id, p.operatorCount)
		klog.Errorf("planner.AddOperatorInfo: %v", err)
		return err
	}
	if kind == OpConv2D {
		if conv == nil {
			exceptions.Panicf("planner.AddOperatorInfo(%d): CONV_2D requires geometry parameters", id)
		}
		if conv.StrideHeight <= 0 || conv.StrideWidth <= 0 {
			exceptions.Panicf("planner.AddOperatorInfo(%d): strides must be positive, got %dx%d",
				id, conv.StrideHeight, conv.StrideWidth)
		}
		p.convParams[id] = *conv
		p.convPadding[id] = forwardPaddingLen(conv)
	} else {
		p.convParams[id] = Conv2DParams{}
		p.convPadding[id] = 0
	}
	p.opKinds[id] = kind
	p.opReversed[id] = false
	p.needsPlan = true
	return nil
}

// AddBuffer appends a buffer record: its byte size, the inclusive interval
// of operator steps over which it must be resident, and the bit-sets naming
// the operators it is an input (consumers) and output (producers) of. The
// planner chooses its offset. Returns ErrCapacityExceeded when the scratch
// region cannot hold another buffer; previously added state stays valid.
func (p *Planner) AddBuffer(size, firstStep, lastStep int, consumers, producers bitset.Set) error {
	return p.addBuffer(size, firstStep, lastStep, consumers, producers, UnplannedOffset)
}

// AddPinnedBuffer is AddBuffer for a buffer whose arena offset was fixed
// offline by the client; the planner honours offlineOffset verbatim.
func (p *Planner) AddPinnedBuffer(size, firstStep, lastStep int, consumers, producers bitset.Set, offlineOffset int) error {
	if offlineOffset < 0 {
		exceptions.Panicf("planner.AddPinnedBuffer: offline offset %d must be non-negative", offlineOffset)
	}
	return p.addBuffer(size, firstStep, lastStep, consumers, producers, offlineOffset)
}

func (p *Planner) addBuffer(size, firstStep, lastStep int, consumers, producers bitset.Set, offlineOffset int) error {
	if size < 0 || firstStep < 0 || firstStep > lastStep {
		exceptions.Panicf("planner.AddBuffer: invalid buffer size=%d live=[%d,%d]", size, firstStep, lastStep)
	}
	if p.bufferCount >= p.maxBufferCount {
		err := errors.Wrapf(ErrCapacityExceeded, "too many buffers (max is %d)", p.maxBufferCount)
		klog.Errorf("planner.AddBuffer: %v", err)
		return err
	}
	i := p.bufferCount
	p.sizes[i] = size
	p.firstSteps[i] = firstStep
	p.lastSteps[i] = lastStep
	p.offlineOffsets[i] = offlineOffset
	p.consumerMask(i).CopyFrom(consumers)
	p.producerMask(i).CopyFrom(producers)
	p.bufferCount++
	p.needsPlan = true
	return nil
}

// calculateOffsetsIfNeeded computes the plan when registrations have made
// it stale. Every query goes through here.
func (p *Planner) calculateOffsetsIfNeeded() {
	if !p.needsPlan {
		return
	}
	p.needsPlan = false
	if p.bufferCount == 0 {
		return
	}
	for k := range p.opReversed {
		p.opReversed[k] = false
	}

	// Pinned buffers come first, in insertion order, keyed by their last
	// use so the sorted tail stays comparable; online buffers follow and
	// are sorted ascending by first use, ties broken by descending last
	// use, preserving insertion order on full ties.
	numPinned := 0
	for i := 0; i < p.bufferCount; i++ {
		if p.offlineOffsets[i] == UnplannedOffset {
			p.offsets[i] = unassigned
			continue
		}
		p.sortFirst[numPinned] = p.lastSteps[i]
		p.sortLast[numPinned] = p.lastSteps[i]
		p.sortIDs[numPinned] = i
		p.offsets[i] = p.offlineOffsets[i]
		numPinned++
	}
	idx := numPinned
	for i := 0; i < p.bufferCount; i++ {
		if p.offlineOffsets[i] != UnplannedOffset {
			continue
		}
		p.sortFirst[idx] = p.firstSteps[i]
		p.sortLast[idx] = p.lastSteps[i]
		p.sortIDs[idx] = i
		idx++
	}
	sortTwoLevel(p.sortFirst[numPinned:p.bufferCount],
		p.sortLast[numPinned:p.bufferCount],
		p.sortIDs[numPinned:p.bufferCount])

	p.firstEntryIndex = nilEntry
	p.nextFreeEntry = 0
	for pos := 0; pos < p.bufferCount; pos++ {
		id := p.sortIDs[pos]
		size := p.sizes[id]
		first := p.firstSteps[id]
		last := p.lastSteps[id]

		candidate := 0
		if p.offlineOffsets[id] != UnplannedOffset {
			// Offline-planned offsets are constants.
			candidate = p.offlineOffsets[id]
		} else {
			prior := nilEntry
			for {
				next := p.nextSimultaneouslyActive(prior, first, last)
				if prior != nilEntry {
					if bump := p.offsetAfterPrior(prior, id); bump > candidate {
						candidate = bump
					}
				}
				if next == nilEntry {
					// End of the list, the buffer can always go here.
					break
				}
				gap := p.entries[next].offset - candidate
				if gap >= p.requiredGap(next, id, size) {
					break
				}
				prior = next
			}
		}
		p.offsets[id] = candidate
		p.insertEntry(id, candidate)
	}
}

// GetOffsetForBuffer returns where in the arena the buffer at index should
// be placed. Returns ErrIndexOutOfRange when index is not a registered
// buffer.
func (p *Planner) GetOffsetForBuffer(index int) (int, error) {
	p.calculateOffsetsIfNeeded()
	if index < 0 || index >= p.bufferCount {
		err := errors.Wrapf(ErrIndexOutOfRange, "buffer index %d is outside range 0 to %d", index, p.bufferCount)
		klog.Errorf("planner.GetOffsetForBuffer: %v", err)
		return 0, err
	}
	return p.offsets[index], nil
}

// GetMaximumMemorySize returns the arena high-water mark: the smallest
// arena, in bytes, that holds every placed buffer. Zero when no buffers
// were added.
func (p *Planner) GetMaximumMemorySize() int {
	p.calculateOffsetsIfNeeded()
	maxSize := 0
	for i := 0; i < p.bufferCount; i++ {
		if end := p.offsets[i] + p.sizes[i]; end > maxSize {
			maxSize = end
		}
	}
	return maxSize
}

// OperatorReversed reports whether overlap admission requires the operator
// at id to iterate its output positions in reverse natural order. Kernel
// dispatchers must consult this for operators whose output aliases their
// input.
func (p *Planner) OperatorReversed(id int) (bool, error) {
	p.calculateOffsetsIfNeeded()
	if id < 0 || id >= p.operatorCount {
		err := errors.Wrapf(ErrIndexOutOfRange, "operator id %d is outside range 0 to %d", id, p.operatorCount)
		klog.Errorf("planner.OperatorReversed: %v", err)
		return false, err
	}
	return p.opReversed[id], nil
}

// DoAnyBuffersOverlap reports every pair of buffers that overlap both in
// time and in arena bytes, logging each. Overlap-admitted pairs show up
// here too: the check is a debugging aid that surfaces them for
// inspection, so it returns true in that case. O(N²); use for testing.
func (p *Planner) DoAnyBuffersOverlap() bool {
	p.calculateOffsetsIfNeeded()
	found := false
	for a := 0; a < p.bufferCount; a++ {
		aStart, aEnd := p.offsets[a], p.offsets[a]+p.sizes[a]
		for b := 0; b < p.bufferCount; b++ {
			if a == b {
				continue
			}
			if p.firstSteps[a] > p.lastSteps[b] || p.firstSteps[b] > p.lastSteps[a] {
				continue
			}
			bStart, bEnd := p.offsets[b], p.offsets[b]+p.sizes[b]
			if aStart >= bEnd || bStart >= aEnd {
				continue
			}
			found = true
			klog.Warningf("planner: overlap: %d (%d=>%d, %d->%d) vs %d (%d=>%d, %d->%d)",
				a, p.firstSteps[a], p.lastSteps[a], aStart, aEnd,
				b, p.firstSteps[b], p.lastSteps[b], bStart, bEnd)
		}
	}
	return found
}
