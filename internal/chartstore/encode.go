// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chartstore

import (
	"encoding/binary"
	"math"
	"time"
)

// EncodeHeader renders hdr with the current signature. recordCount must
// match the number of records that will follow in the file.
func EncodeHeader(hdr Header, recordCount uint32) []byte {
	hdr.RecordCount = recordCount
	hdr.HeaderLen = headerFixedLen

	buf := make([]byte, headerFixedLen)
	copy(buf[:sigLen], Signature)
	off := sigLen
	binary.BigEndian.PutUint32(buf[off:], hdr.HeaderLen)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], hdr.FileSize)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], hdr.FreeSlot)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], hdr.RecordCount)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], hdr.Date)
	return buf
}

// RecordInput describes one record to encode via EncodeRecord.
type RecordInput struct {
	Entry
	CurTick uint32
	Created time.Time
	Updated time.Time
	Updates uint32
	Samples []float64
}

// EncodeRecord renders one fixed-shape chart record: header fields
// followed by a tick-count float array (spec.md §4.9/§6). len(Samples)
// must equal 86400/interval-seconds.
func EncodeRecord(in RecordInput) []byte {
	tickCnt := len(in.Samples)
	buf := make([]byte, recordFixedLen+tickCnt*8)

	off := 0
	copy(buf[off:off+serviceFieldLen], in.Service)
	off += serviceFieldLen
	copy(buf[off:off+tickerFieldLen], in.Ticker)
	off += tickerFieldLen
	binary.BigEndian.PutUint32(buf[off:], in.Index)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], in.FieldID)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(in.Interval/time.Second))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], in.CurTick)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(in.Created.UnixNano()))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(in.Updated.UnixNano()))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], in.Updates)
	off += 4

	for i, v := range in.Samples {
		binary.BigEndian.PutUint64(buf[off+i*8:], math.Float64bits(v))
	}
	return buf
}
