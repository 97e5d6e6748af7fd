// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

// nilEntry is the end sentinel of the offset-ordered list.
const nilEntry = -1

// listEntry is one node of the singly-linked list of placed buffers kept
// sorted by ascending arena offset. Nodes live in an arena-backed array and
// link by index, so the planner stays a plain byte image with no pointers.
type listEntry struct {
	offset      int
	bufferIndex int
	next        int
}

// overlapsInTime reports whether the buffer of entry e is live anywhere in
// [firstStep, lastStep].
func (p *Planner) overlapsInTime(e *listEntry, firstStep, lastStep int) bool {
	idx := e.bufferIndex
	return p.firstSteps[idx] <= lastStep && firstStep <= p.lastSteps[idx]
}

// nextSimultaneouslyActive walks the offset-ordered list strictly after
// start (or from the head when start == nilEntry) and returns the index of
// the first entry whose buffer's live interval intersects
// [firstStep, lastStep], or nilEntry if there is none.
func (p *Planner) nextSimultaneouslyActive(start, firstStep, lastStep int) int {
	var candidate int
	if start == nilEntry {
		candidate = p.firstEntryIndex
	} else {
		candidate = p.entries[start].next
	}
	for candidate != nilEntry {
		if p.overlapsInTime(&p.entries[candidate], firstStep, lastStep) {
			return candidate
		}
		candidate = p.entries[candidate].next
	}
	return nilEntry
}

// insertEntry links a new node for bufferIndex at the position its offset
// determines. Entries sharing an offset keep insertion order: the new node
// goes after every existing node with the same offset.
func (p *Planner) insertEntry(bufferIndex, offset int) {
	newIndex := p.nextFreeEntry
	p.nextFreeEntry++
	entry := &p.entries[newIndex]
	entry.offset = offset
	entry.bufferIndex = bufferIndex

	if p.firstEntryIndex == nilEntry {
		entry.next = nilEntry
		p.firstEntryIndex = newIndex
		return
	}
	if p.entries[p.firstEntryIndex].offset > offset {
		entry.next = p.firstEntryIndex
		p.firstEntryIndex = newIndex
		return
	}
	current := p.firstEntryIndex
	for {
		next := p.entries[current].next
		if next == nilEntry || p.entries[next].offset > offset {
			entry.next = next
			p.entries[current].next = newIndex
			return
		}
		current = next
	}
}
