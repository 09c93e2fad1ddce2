// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lvc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gatea-dev/rtedge/internal/schema"
	"github.com/gatea-dev/rtedge/internal/wire"
)

// Slot layout (current binary form, spec.md §4.1/§4.8):
//
//	u32  total slot length (including this field)
//	64B  service name, NUL-padded
//	255B ticker, NUL-padded
//	u8   active flag
//	i64  create timestamp (unix nanos)
//	i64  update timestamp
//	i64  dead timestamp
//	u32  update counter
//	u32  field count
//	u32  field payload length
//	[]byte field payload (wire.EncodeField repeated)
const slotHeaderLen = 4 + serviceFieldLen + tickerFieldLen + 1 + 8 + 8 + 8 + 4 + 4 + 4

// peekSlotLen reads the leading length prefix of a slot without
// decoding its body, used to walk the slot table during indexing.
func peekSlotLen(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, nil // end of mapped region
	}
	n := int(binary.BigEndian.Uint32(buf))
	if n == 0 {
		return 0, nil // free/unused tail
	}
	if n < slotHeaderLen || n > len(buf) {
		return 0, fmt.Errorf("lvc: corrupt slot length %d", n)
	}
	return n, nil
}

func decodeSlot(buf []byte, dict *schema.Dictionary, filter map[int]bool) (Record, bool, error) {
	if len(buf) < slotHeaderLen {
		return Record{}, false, fmt.Errorf("lvc: truncated slot")
	}
	off := 4
	service := trimNulls(buf[off : off+serviceFieldLen])
	off += serviceFieldLen
	ticker := trimNulls(buf[off : off+tickerFieldLen])
	off += tickerFieldLen
	active := buf[off] != 0
	off += 1
	created := int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	updated := int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	dead := int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	updCount := binary.BigEndian.Uint32(buf[off:])
	off += 4
	fieldCount := binary.BigEndian.Uint32(buf[off:])
	off += 4
	payloadLen := binary.BigEndian.Uint32(buf[off:])
	off += 4

	if off+int(payloadLen) > len(buf) {
		return Record{}, false, fmt.Errorf("lvc: slot payload overruns buffer")
	}
	payload := buf[off : off+int(payloadLen)]

	fields, _, err := wire.DecodeFields(payload, binary.BigEndian, int(fieldCount))
	if err != nil {
		return Record{}, false, fmt.Errorf("lvc: decode slot fields: %w", err)
	}

	if filter != nil {
		kept := fields[:0]
		for _, f := range fields {
			if filter[int(f.ID)] {
				kept = append(kept, f)
			}
		}
		fields = kept
	}

	for i := range fields {
		if f, ok := dict.ByID(int(fields[i].ID)); ok {
			fields[i].Name = f.Name
		}
	}

	return Record{
		Service: service,
		Ticker:  ticker,
		Active:  active,
		Created: time.Unix(0, created),
		Updated: time.Unix(0, updated),
		Dead:    time.Unix(0, dead),
		Updates: updCount,
		Fields:  fields,
	}, true, nil
}

// EncodeSlot renders rec into the current binary slot layout, for use
// by an LVC writer (the publishing side; spec.md §4.1 names the format,
// not a specific writer API). Returned slice is self-contained and
// length-prefixed.
func EncodeSlot(rec Record) ([]byte, error) {
	if len(rec.Service) > serviceFieldLen {
		return nil, fmt.Errorf("lvc: service name exceeds %d bytes", serviceFieldLen)
	}
	if len(rec.Ticker) > tickerFieldLen {
		return nil, fmt.Errorf("lvc: ticker exceeds %d bytes", tickerFieldLen)
	}

	var payload []byte
	for _, f := range rec.Fields {
		payload = wire.EncodeField(payload, f, binary.BigEndian)
	}

	total := slotHeaderLen + len(payload)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:], uint32(total))
	off := 4
	copy(buf[off:], rec.Service)
	off += serviceFieldLen
	copy(buf[off:], rec.Ticker)
	off += tickerFieldLen
	if rec.Active {
		buf[off] = 1
	}
	off += 1
	binary.BigEndian.PutUint64(buf[off:], uint64(rec.Created.UnixNano()))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(rec.Updated.UnixNano()))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(rec.Dead.UnixNano()))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], rec.Updates)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(rec.Fields)))
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(payload)))
	off += 4
	copy(buf[off:], payload)

	return buf, nil
}

// EncodeHeader renders a Header plus its inlined schema table, the
// prefix a Writer lays down before any slots.
func EncodeHeader(hdr Header, fields []schema.Field) []byte {
	hdr.FieldCount = uint32(len(fields))
	buf := make([]byte, headerFixedLen+len(fields)*(4+1+64))

	sig := hdr.Signature
	if sig == "" {
		sig = SignatureCurrent
	}
	copy(buf[:sigFieldLen], sig)

	off := sigFieldLen
	binary.BigEndian.PutUint32(buf[off:], hdr.HeaderLen)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], hdr.FileSize)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], hdr.FreeIndex)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], hdr.FieldCount)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], hdr.NumServices)
	off += 4
	buf[off] = hdr.BinaryText
	off += 1

	for _, f := range fields {
		binary.BigEndian.PutUint32(buf[off:], uint32(f.ID))
		off += 4
		buf[off] = byte(f.Type)
		off += 1
		copy(buf[off:off+64], f.Name)
		off += 64
	}

	binary.BigEndian.PutUint32(buf[sigFieldLen:], uint32(len(buf)))
	return buf
}
