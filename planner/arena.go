// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

import (
	"unsafe"

	"github.com/gomlx/exceptions"

	"github.com/gomlx/memplan/types/bitset"
)

// arena carves typed working arrays out of the caller-supplied scratch
// region. All carving happens once, at Planner construction; the arena never
// grows and nothing is ever returned to it.
type arena struct {
	buf  []byte
	used int
}

const wordSize = int(unsafe.Sizeof(int(0)))

// carveReserve is the alignment slack budgeted per carved array when the
// buffer capacity is derived from the scratch size.
const carveReserve = wordSize

// numCarves is how many arrays the planner carves from the scratch region.
const numCarves = 15

func (a *arena) align() {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	for (base+uintptr(a.used))%uintptr(wordSize) != 0 {
		a.used++
	}
}

// carve returns n bytes aligned to the machine word size.
func (a *arena) carve(n int) []byte {
	a.align()
	if a.used+n > len(a.buf) {
		exceptions.Panicf("planner: scratch region overflow carving %d bytes (%d of %d used)",
			n, a.used, len(a.buf))
	}
	b := a.buf[a.used : a.used+n]
	a.used += n
	return b
}

// carveInts returns a zeroed []int of length n backed by the scratch region.
func (a *arena) carveInts(n int) []int {
	if n == 0 {
		return nil
	}
	b := a.carve(n * wordSize)
	s := unsafe.Slice((*int)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = 0
	}
	return s
}

// carveWords returns a zeroed []uint64 of length n backed by the scratch region.
func (a *arena) carveWords(n int) []uint64 {
	if n == 0 {
		return nil
	}
	b := a.carve(n * 8)
	s := unsafe.Slice((*uint64)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = 0
	}
	return s
}

// carveEntries returns a []listEntry of length n backed by the scratch region.
func (a *arena) carveEntries(n int) []listEntry {
	if n == 0 {
		return nil
	}
	b := a.carve(n * int(unsafe.Sizeof(listEntry{})))
	s := unsafe.Slice((*listEntry)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = listEntry{}
	}
	return s
}

// carveConvParams returns a []Conv2DParams of length n backed by the scratch
// region.
func (a *arena) carveConvParams(n int) []Conv2DParams {
	if n == 0 {
		return nil
	}
	b := a.carve(n * int(unsafe.Sizeof(Conv2DParams{})))
	s := unsafe.Slice((*Conv2DParams)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = Conv2DParams{}
	}
	return s
}

// carveKinds returns a []OpKind of length n backed by the scratch region.
func (a *arena) carveKinds(n int) []OpKind {
	if n == 0 {
		return nil
	}
	b := a.carve(n * int(unsafe.Sizeof(OpKind(0))))
	s := unsafe.Slice((*OpKind)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = OpOther
	}
	return s
}

// carveBools returns a zeroed []bool of length n backed by the scratch region.
func (a *arena) carveBools(n int) []bool {
	if n == 0 {
		return nil
	}
	b := a.carve(n)
	s := unsafe.Slice((*bool)(unsafe.Pointer(unsafe.SliceData(b))), n)
	for i := range s {
		s[i] = false
	}
	return s
}

// PerBufferBytes returns how many bytes of scratch one planned buffer costs
// for a planner declared with operatorCount operators: the buffer record and
// sort-key slots, the offset-ordered list node, the final offset, and the
// consumer/producer operator masks. Use it to size the scratch region.
func PerBufferBytes(operatorCount int) int {
	const intArraysPerBuffer = 8 // size, first, last, offline, 3 sort keys, offset
	return intArraysPerBuffer*wordSize +
		int(unsafe.Sizeof(listEntry{})) +
		2*bitset.WordsFor(operatorCount)*8
}

// perOperatorBytes is the scratch cost of one operator slot: kind, conv
// geometry, cached forward-padding length, and the reverse flag.
func perOperatorBytes() int {
	return int(unsafe.Sizeof(OpKind(0))) +
		int(unsafe.Sizeof(Conv2DParams{})) +
		wordSize + 1
}

// fixedOverheadBytes is the scratch the planner needs before the first
// buffer fits: the operator table plus worst-case alignment padding.
func fixedOverheadBytes(operatorCount int) int {
	return operatorCount*perOperatorBytes() + numCarves*carveReserve
}
