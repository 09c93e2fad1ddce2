// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackedUintRoundTrip(t *testing.T) {
	// The packed scheme carries 5 bits in the first byte plus 8 bits per
	// additional byte, up to 7 additional bytes: a 61-bit domain. Values
	// are tested across that full representable range.
	values := []uint64{
		0, 1, 31, 32, 63, 255, 256, 1<<20 - 1, 1 << 20, 1 << 40, 1<<61 - 1,
	}
	for _, v := range values {
		enc := EncodePackedUint(nil, v)
		require.GreaterOrEqual(t, len(enc), 1)
		require.LessOrEqual(t, len(enc), 8)

		got, n, ok := DecodePackedUint(enc)
		require.True(t, ok)
		require.Equal(t, len(enc), n)
		require.Equal(t, v, got)
	}
}

func TestPackedUintDecodeIsTotal(t *testing.T) {
	// Any single termination byte must decode without overrun.
	for b := 0; b < 256; b++ {
		n := int(byte(b)>>5) + 1
		buf := make([]byte, n)
		buf[0] = byte(b)
		_, consumed, ok := DecodePackedUint(buf)
		require.True(t, ok)
		require.Equal(t, n, consumed)
	}
}

func TestPackedIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 42, -42, 1 << 30, -(1 << 30)}
	for _, v := range values {
		enc := EncodePackedInt(nil, v)
		got, n, ok := DecodePackedInt(enc)
		require.True(t, ok)
		require.Equal(t, len(enc), n)
		require.Equal(t, v, got)
	}
}
