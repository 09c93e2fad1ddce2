// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tape

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeHeader renders hdr's fixed fields followed by its per-stream
// descriptor table. The daily index is encoded separately by the
// writer, immediately after the bytes returned here.
func EncodeHeader(hdr Header) []byte {
	buf := make([]byte, headerFixedLen+len(hdr.Streams)*streamDescLen)
	copy(buf[:sigLen], SignatureCurrent)
	off := sigLen

	binary.BigEndian.PutUint32(buf[off:], headerFixedLen+uint32(len(hdr.Streams))*streamDescLen)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], hdr.FileSize)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], hdr.WriteOffset)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], hdr.WindowOffset)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], hdr.WindowSize)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(hdr.CreatedAt.UnixNano()))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(hdr.EndOfDay.UnixNano()))
	off += 8
	buf[off] = byte(hdr.Endian)
	off++
	buf[off] = hdr.WordSize
	off++
	binary.BigEndian.PutUint32(buf[off:], hdr.IndexGranularitySec)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], hdr.IndexBuckets)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(hdr.Streams)))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], hdr.TotalMessages)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], hdr.TotalBytes)
	off += 8

	for _, sd := range hdr.Streams {
		binary.BigEndian.PutUint32(buf[off:], sd.DBIdx)
		off += 4
		copy(buf[off:off+64], sd.Name)
		off += 64
		binary.BigEndian.PutUint64(buf[off:], sd.Last)
		off += 8
	}
	return buf
}

// DecodeHeader parses the fixed header and stream table starting at
// buf[0], returning the header and the byte offset where the daily
// index begins.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) < headerFixedLen {
		return Header{}, 0, fmt.Errorf("tape: %w: file too short", ErrBadSignature)
	}
	sig := trimNulls(buf[:sigLen])
	if sig != SignatureCurrent && sig != SignatureLegacy004 {
		return Header{}, 0, fmt.Errorf("tape: %w: %q", ErrBadSignature, sig)
	}

	off := sigLen
	var hdr Header
	_ = binary.BigEndian.Uint32(buf[off:]) // header length, recomputed on encode
	off += 4
	hdr.FileSize = binary.BigEndian.Uint64(buf[off:])
	off += 8
	hdr.WriteOffset = binary.BigEndian.Uint64(buf[off:])
	off += 8
	hdr.WindowOffset = binary.BigEndian.Uint64(buf[off:])
	off += 8
	hdr.WindowSize = binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(buf[off:])))
	off += 8
	hdr.EndOfDay = time.Unix(0, int64(binary.BigEndian.Uint64(buf[off:])))
	off += 8
	hdr.Endian = Endian(buf[off])
	off++
	hdr.WordSize = buf[off]
	off++
	hdr.IndexGranularitySec = binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.IndexBuckets = binary.BigEndian.Uint32(buf[off:])
	off += 4
	numStreams := binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.TotalMessages = binary.BigEndian.Uint64(buf[off:])
	off += 8
	hdr.TotalBytes = binary.BigEndian.Uint64(buf[off:])
	off += 8

	if off+int(numStreams)*streamDescLen > len(buf) {
		return Header{}, 0, fmt.Errorf("tape: truncated stream table")
	}
	hdr.Streams = make([]StreamDesc, numStreams)
	for i := range hdr.Streams {
		hdr.Streams[i].DBIdx = binary.BigEndian.Uint32(buf[off:])
		off += 4
		hdr.Streams[i].Name = trimNulls(buf[off : off+64])
		off += 64
		hdr.Streams[i].Last = binary.BigEndian.Uint64(buf[off:])
		off += 8
	}
	return hdr, off, nil
}

// EncodeMsgHeader renders a fixed per-message header (spec.md §6).
func EncodeMsgHeader(mh MsgHeader) []byte {
	buf := make([]byte, MsgHeaderLen)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], mh.Length)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], mh.DBIdx)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], mh.TVSec)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], mh.TVUsec)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], mh.NUpd)
	off += 4
	buf[off] = mh.NFldMod
	off++
	if mh.BLast4 {
		buf[off] = 1
	}
	off++
	binary.BigEndian.PutUint64(buf[off:], mh.Last)
	return buf
}

// DecodeMsgHeader parses a fixed per-message header from buf[0:MsgHeaderLen].
func DecodeMsgHeader(buf []byte) (MsgHeader, error) {
	if len(buf) < MsgHeaderLen {
		return MsgHeader{}, fmt.Errorf("tape: truncated message header")
	}
	var mh MsgHeader
	off := 0
	mh.Length = binary.BigEndian.Uint32(buf[off:])
	off += 4
	mh.DBIdx = binary.BigEndian.Uint32(buf[off:])
	off += 4
	mh.TVSec = binary.BigEndian.Uint32(buf[off:])
	off += 4
	mh.TVUsec = binary.BigEndian.Uint32(buf[off:])
	off += 4
	mh.NUpd = binary.BigEndian.Uint32(buf[off:])
	off += 4
	mh.NFldMod = buf[off]
	off++
	mh.BLast4 = buf[off] != 0
	off++
	mh.Last = binary.BigEndian.Uint64(buf[off:])
	return mh, nil
}
