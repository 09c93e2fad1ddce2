// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the MD-Direct binary and XML wire codec: the
// variable-width packed integer scheme, typed Field encoding, and the
// fixed header envelope described in the protocol's external interfaces.
package wire

import "encoding/binary"

// signSentinel marks a packed-signed value: a leading 0xFF flags a
// following packed magnitude with separate sign per spec.md §6. 0xFF is
// also the first byte of an 8-byte packed value whose top 5 bits are all
// set (7<<5|0x1f), and DecodePackedInt always reads a leading 0xFF as the
// sentinel, so a non-negative value whose packed form starts with 0xFF
// does not round-trip through EncodePackedInt/DecodePackedInt.
const signSentinel = 0xFF

// EncodePackedUint appends the variable-width packed encoding of v to dst
// and returns the extended slice. The first byte carries (N-1) in its top
// 3 bits and the top 5 bits of v; N-1 further bytes follow big-endian.
func EncodePackedUint(dst []byte, v uint64) []byte {
	n := packedWidth(v)
	top5 := byte(v >> uint((n-1)*8))
	dst = append(dst, byte(n-1)<<5|(top5&0x1f))
	for i := n - 2; i >= 0; i-- {
		dst = append(dst, byte(v>>uint(i*8)))
	}
	return dst
}

// packedWidth returns the number of bytes (1..8) needed to hold v under the
// 5-bits-in-first-byte + 8-bits-per-subsequent-byte packed scheme.
func packedWidth(v uint64) int {
	// First byte holds 5 value bits; each further byte holds 8 more.
	bits := bitLen64(v)
	if bits <= 5 {
		return 1
	}
	n := 1 + (bits-5+7)/8
	if n > 8 {
		n = 8
	}
	return n
}

func bitLen64(v uint64) int {
	n := 0
	for v != 0 {
		n++
		v >>= 1
	}
	return n
}

// DecodePackedUint decodes a packed unsigned integer starting at src[0] and
// returns the value and the number of bytes consumed. Decode is total: any
// prefix-termination byte yields a value, and N is always 1..8, so there is
// never a length overrun for a well-formed prefix.
func DecodePackedUint(src []byte) (value uint64, consumed int, ok bool) {
	if len(src) == 0 {
		return 0, 0, false
	}
	first := src[0]
	n := int(first>>5) + 1
	if len(src) < n {
		return 0, 0, false
	}
	value = uint64(first & 0x1f)
	for i := 1; i < n; i++ {
		value = value<<8 | uint64(src[i])
	}
	return value, n, true
}

// EncodeUnpackedUint32 writes v as a fixed 4-byte big-endian value,
// bypassing the packed scheme (the header's "len" field is always this
// form; other fields use it when the envelope's pack flag is clear).
func EncodeUnpackedUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// DecodeUnpackedUint32 reads a fixed 4-byte big-endian value.
func DecodeUnpackedUint32(src []byte) (uint32, int, bool) {
	if len(src) < 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(src), 4, true
}

// EncodePackedInt appends a signed packed integer: sign sentinel 0xFF
// followed by the packed magnitude, per spec.md §6.
func EncodePackedInt(dst []byte, v int64) []byte {
	mag := uint64(v)
	if v < 0 {
		mag = uint64(-v)
		dst = append(dst, signSentinel)
	}
	return EncodePackedUint(dst, mag)
}

// DecodePackedInt decodes a signed packed integer, honoring the leading
// sign sentinel.
func DecodePackedInt(src []byte) (value int64, consumed int, ok bool) {
	if len(src) == 0 {
		return 0, 0, false
	}
	neg := false
	off := 0
	if src[0] == signSentinel {
		neg = true
		off = 1
	}
	mag, n, ok := DecodePackedUint(src[off:])
	if !ok {
		return 0, 0, false
	}
	v := int64(mag)
	if neg {
		v = -v
	}
	return v, off + n, true
}
