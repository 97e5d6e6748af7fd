// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetTestClear(t *testing.T) {
	s := Make(9)
	require.Equal(t, 9, s.Len())
	require.Equal(t, 0, s.Count())

	s.Set(0)
	s.Set(8)
	require.True(t, s.Test(0))
	require.False(t, s.Test(1))
	require.True(t, s.Test(8))
	require.Equal(t, 2, s.Count())
	require.Equal(t, "100000001", s.String())

	s.Clear(0)
	require.False(t, s.Test(0))
	require.Equal(t, 1, s.Count())
}

func TestWordBoundaries(t *testing.T) {
	require.Equal(t, 0, WordsFor(0))
	require.Equal(t, 1, WordsFor(1))
	require.Equal(t, 1, WordsFor(64))
	require.Equal(t, 2, WordsFor(65))

	s := Make(130)
	for _, i := range []int{0, 63, 64, 127, 128, 129} {
		s.Set(i)
		require.True(t, s.Test(i))
	}
	require.Equal(t, 6, s.Count())
}

func TestNextSet(t *testing.T) {
	s := Make(200)
	s.Set(3)
	s.Set(64)
	s.Set(199)
	require.Equal(t, 3, s.NextSet(-5))
	require.Equal(t, 3, s.NextSet(0))
	require.Equal(t, 3, s.NextSet(3))
	require.Equal(t, 64, s.NextSet(4))
	require.Equal(t, 199, s.NextSet(65))
	require.Equal(t, -1, Make(10).NextSet(0))
}

func TestFromWordsView(t *testing.T) {
	words := make([]uint64, 2)
	s := FromWords(words, 70)
	s.Set(69)
	require.NotZero(t, words[1])
	words[0] = 1
	require.True(t, s.Test(0))
}

func TestCopyFrom(t *testing.T) {
	src := Make(10)
	src.Set(1)
	src.Set(9)

	dst := FromWords(make([]uint64, 1), 10)
	dst.Set(5)
	dst.CopyFrom(src)
	require.Equal(t, "0100000001", dst.String())

	// Shorter source clears the leftover high bits of the destination.
	dst.CopyFrom(Make(0))
	require.Equal(t, 0, dst.Count())
}

func TestOutOfRangePanics(t *testing.T) {
	s := Make(4)
	require.Panics(t, func() { s.Test(4) })
	require.Panics(t, func() { s.Set(-1) })
	require.Panics(t, func() { FromWords(nil, 1) })
}
