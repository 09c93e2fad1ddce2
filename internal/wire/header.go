// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "encoding/binary"

// DataType is the header's "dt" byte.
type DataType uint8

const (
	DataImage DataType = iota + 1
	DataUpdate
	DataStatus
	DataPing
)

// MessageType is the header's "mt" byte (spec.md §3/§6).
type MessageType uint8

const (
	MsgImage MessageType = iota + 1
	MsgUpdate
	MsgStatus
	MsgPing
	MsgOpen
	MsgClose
	MsgMount
	MsgInsert
	MsgQuery
	MsgAck
)

// Protocol selects the active wire encoding (spec.md §6).
type Protocol uint8

const (
	ProtoBinary     Protocol = 1
	ProtoXML        Protocol = 2
	ProtoMarketFeed Protocol = 3
)

func (p Protocol) valid() bool {
	return p == ProtoBinary || p == ProtoXML || p == ProtoMarketFeed
}

// Header is the MD-Direct message envelope (spec.md §3/§6). Len is always
// a fixed 4-byte big-endian field; Tag, Time, and RTL are packed or
// unpacked per Pack.
type Header struct {
	Len      uint32
	Tag      uint32
	DT       DataType
	MT       MessageType
	Protocol Protocol
	Reserved byte
	Time     uint32 // 100-microsecond ticks since local midnight
	RTL      uint32 // round-trip latency counter
	Pack     bool
}

// Encode appends the wire encoding of h to dst.
func (h Header) Encode(dst []byte) []byte {
	dst = EncodeUnpackedUint32(dst, h.Len)
	if h.Pack {
		dst = EncodePackedUint(dst, uint64(h.Tag))
	} else {
		dst = EncodeUnpackedUint32(dst, h.Tag)
	}
	dst = append(dst, byte(h.DT), byte(h.MT), byte(h.Protocol), h.Reserved)
	if h.Pack {
		dst = EncodePackedUint(dst, uint64(h.Time))
		dst = EncodePackedUint(dst, uint64(h.RTL))
	} else {
		dst = EncodeUnpackedUint32(dst, h.Time)
		dst = EncodeUnpackedUint32(dst, h.RTL)
	}
	return dst
}

// DecodeHeader decodes a Header from the start of src. pack selects whether
// Tag/Time/RTL are read in packed or unpacked form; the decoder must accept
// either form on the same stream, so callers typically peek the reserved
// pack flag out of band (e.g. from a prior session-level negotiation) and
// pass it in here.
func DecodeHeader(src []byte, pack bool) (Header, int, error) {
	if len(src) < 4 {
		return Header{}, 0, newErr(MalformedFrame, 0, "truncated length")
	}
	length, _, _ := DecodeUnpackedUint32(src)
	off := 4

	var tag, t, rtl uint64
	var ok bool
	var n int
	if pack {
		tag, n, ok = DecodePackedUint(src[off:])
	} else {
		var v uint32
		v, n, ok = DecodeUnpackedUint32(src[off:])
		tag = uint64(v)
	}
	if !ok {
		return Header{}, 0, newErr(TruncatedValue, off, "tag")
	}
	off += n

	if off+4 > len(src) {
		return Header{}, 0, newErr(TruncatedValue, off, "dt/mt/protocol/reserved")
	}
	dt, mt, proto, reserved := src[off], src[off+1], src[off+2], src[off+3]
	off += 4

	if !Protocol(proto).valid() {
		return Header{}, 0, newErr(UnsupportedProto, off-2, "protocol byte")
	}

	if pack {
		t, n, ok = DecodePackedUint(src[off:])
	} else {
		var v uint32
		v, n, ok = DecodeUnpackedUint32(src[off:])
		t = uint64(v)
	}
	if !ok {
		return Header{}, 0, newErr(TruncatedValue, off, "time")
	}
	off += n

	if pack {
		rtl, n, ok = DecodePackedUint(src[off:])
	} else {
		var v uint32
		v, n, ok = DecodeUnpackedUint32(src[off:])
		rtl = uint64(v)
	}
	if !ok {
		return Header{}, 0, newErr(TruncatedValue, off, "rtl")
	}
	off += n

	h := Header{
		Len:      length,
		Tag:      uint32(tag),
		DT:       DataType(dt),
		MT:       MessageType(mt),
		Protocol: Protocol(proto),
		Reserved: reserved,
		Time:     uint32(t),
		RTL:      uint32(rtl),
		Pack:     pack,
	}
	if int(h.Len) < off {
		return Header{}, 0, newErr(MalformedFrame, 0, "declared length shorter than header")
	}
	return h, off, nil
}

// hostEndian reports this process's native byte order, used only to decide
// whether a numeric wire value needs a byte-swap relative to the big-endian
// network form (spec.md §4.1).
func hostEndian() binary.ByteOrder {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 0x0102)
	if buf[0] == 0x02 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
