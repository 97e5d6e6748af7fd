// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bitset implements fixed-width bit-sets backed by []uint64 words.
//
// It is used by the planner to record which operators consume or produce a
// buffer: one bit per operator index. Sets can own their storage (Make) or
// be views over words carved out of a caller-managed region (FromWords), so
// the planner can keep all of its masks inside its scratch arena without
// allocating.
package bitset

import (
	"math/bits"
	"strings"

	"github.com/gomlx/exceptions"
)

// BitsPerWord is the width of one storage word.
const BitsPerWord = 64

// Set is a fixed-length sequence of bits.
//
// The zero value is an empty set of length 0. Set is a small value type: it
// can be copied freely, and copies share the underlying words.
type Set struct {
	words  []uint64
	length int
}

// WordsFor returns how many uint64 words are needed to hold length bits.
func WordsFor(length int) int {
	return (length + BitsPerWord - 1) / BitsPerWord
}

// Make creates a Set of the given length with all bits clear.
func Make(length int) Set {
	if length < 0 {
		exceptions.Panicf("bitset.Make(%d): length must be non-negative", length)
	}
	return Set{words: make([]uint64, WordsFor(length)), length: length}
}

// FromWords creates a Set view over the given words. The words are not
// copied: mutations through the Set are visible in words and vice versa.
// len(words) must be at least WordsFor(length).
func FromWords(words []uint64, length int) Set {
	if length < 0 || len(words) < WordsFor(length) {
		exceptions.Panicf("bitset.FromWords: %d words cannot hold %d bits", len(words), length)
	}
	return Set{words: words, length: length}
}

// Len returns the number of bits in the set.
func (s Set) Len() int { return s.length }

// Words returns the underlying storage words.
func (s Set) Words() []uint64 { return s.words }

func (s Set) check(i int) {
	if i < 0 || i >= s.length {
		exceptions.Panicf("bitset: index %d out of range for set of length %d", i, s.length)
	}
}

// Test reports whether bit i is set.
func (s Set) Test(i int) bool {
	s.check(i)
	return s.words[i/BitsPerWord]&(1<<(uint(i)%BitsPerWord)) != 0
}

// Set sets bit i.
func (s Set) Set(i int) {
	s.check(i)
	s.words[i/BitsPerWord] |= 1 << (uint(i) % BitsPerWord)
}

// Clear clears bit i.
func (s Set) Clear(i int) {
	s.check(i)
	s.words[i/BitsPerWord] &^= 1 << (uint(i) % BitsPerWord)
}

// Count returns the number of set bits.
func (s Set) Count() int {
	total := 0
	for _, w := range s.words {
		total += bits.OnesCount64(w)
	}
	return total
}

// NextSet returns the index of the first set bit at or after from, or -1 if
// there is none. from may be any value; negative values start at bit 0.
func (s Set) NextSet(from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < s.length; {
		w := s.words[i/BitsPerWord] >> (uint(i) % BitsPerWord)
		if w == 0 {
			i = (i/BitsPerWord + 1) * BitsPerWord
			continue
		}
		return i + bits.TrailingZeros64(w)
	}
	return -1
}

// CopyFrom copies the bits of other into s. If other is shorter than s the
// remaining bits of s are cleared; if longer, the extra bits are ignored.
func (s Set) CopyFrom(other Set) {
	n := copy(s.words, other.words[:min(len(other.words), len(s.words))])
	for i := n; i < len(s.words); i++ {
		s.words[i] = 0
	}
	s.trim()
}

// trim clears the bits beyond length in the last word, so that views built
// over recycled arena words never report stale bits.
func (s Set) trim() {
	if s.length%BitsPerWord == 0 || len(s.words) == 0 {
		return
	}
	last := WordsFor(s.length) - 1
	s.words[last] &= (1 << (uint(s.length) % BitsPerWord)) - 1
	for i := last + 1; i < len(s.words); i++ {
		s.words[i] = 0
	}
}

// String formats the set as a string of '0'/'1' runes, bit 0 first.
func (s Set) String() string {
	var b strings.Builder
	b.Grow(s.length)
	for i := 0; i < s.length; i++ {
		if s.Test(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
