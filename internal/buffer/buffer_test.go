// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearGrowPreservesCursorBytes(t *testing.T) {
	l := NewLinear(4, 1024)
	require.True(t, l.Append([]byte("abcd")))
	require.True(t, l.Append([]byte("efgh")))
	require.Equal(t, "abcdefgh", string(l.Bytes()))
}

func TestLinearAppendOverflowLeavesBufferUnchanged(t *testing.T) {
	l := NewLinear(4, 8)
	require.True(t, l.Append([]byte("1234")))
	before := append([]byte(nil), l.Bytes()...)

	ok := l.Append([]byte("56789")) // would exceed cap of 8
	require.False(t, ok)
	require.Equal(t, before, l.Bytes())
}

func TestCircularOverflowStaging(t *testing.T) {
	// Overflow scenario from spec.md §8, cap = 1MB, no draining: fill the
	// ring to cap, then push one more byte.
	const capBytes = 1 << 20
	c := NewCircular(capBytes)

	first := bytes.Repeat([]byte{0xAA}, capBytes)
	hi, _, ok := c.Push(first)
	require.True(t, ok)
	require.True(t, hi)
	require.Equal(t, capBytes, c.Len())

	_, _, ok = c.Push([]byte{0x01})
	require.False(t, ok, "push beyond cap must fail without modifying the ring")
	require.Equal(t, capBytes, c.Len())
}

func TestCircularPushFillAcceptsUpToCapAndReturnsExcessCount(t *testing.T) {
	// Scenario from spec.md §8: a single 1.5MB write into a 1MB cap must
	// accept the first 1MB into the ring and leave the remaining 0.5MB
	// for the caller to stage elsewhere, crossing the high watermark.
	const capBytes = 1 << 20
	c := NewCircular(capBytes)

	oversized := bytes.Repeat([]byte{0xAA}, capBytes+capBytes/2)
	accepted, hi := c.PushFill(oversized)
	require.Equal(t, capBytes, accepted)
	require.True(t, hi)
	require.Equal(t, capBytes, c.Len())
}

func TestCircularWriteOutDrainsAcrossWrap(t *testing.T) {
	c := NewCircular(8)
	_, _, ok := c.Push([]byte("abcdef"))
	require.True(t, ok)

	var out bytes.Buffer
	n, _, err := c.WriteOut(&out)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, "abcdef", out.String())
	require.Equal(t, 0, c.Len())

	// Push again so begin/end wrap around the ring.
	_, _, ok = c.Push([]byte("ghijkl"))
	require.True(t, ok)
	out.Reset()
	_, err = c.Drain(&out)
	require.NoError(t, err)
	require.Equal(t, "ghijkl", out.String())
}

func TestCircularLowWatermarkFiresOnlyAfterHigh(t *testing.T) {
	c := NewCircular(100)
	c.SetWatermarks(0.8, 0.4)

	hi, _, ok := c.Push(bytes.Repeat([]byte{1}, 90))
	require.True(t, ok)
	require.True(t, hi)

	var out bytes.Buffer
	// Drain down to 30 bytes remaining (below low watermark of 40).
	for c.Len() > 30 {
		_, lo, err := c.WriteOut(&out)
		require.NoError(t, err)
		if c.Len() <= 40 {
			require.True(t, lo || c.Len() > 30)
		}
	}
}
