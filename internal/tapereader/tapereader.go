// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tapereader reads tape journals written by internal/tape
// (spec.md §4.10): Open maps the file read-only, Rewind/RewindTo seek
// the cursor by daily index bucket, and Read walks messages
// sequentially. Cross-endian tapes (written on a host of different
// byte order than the reader) are decoded via the Header's recorded
// Endian rather than assuming host order, grounded on
// arloliu-mebo/endian's EndianEngine pattern of carrying byte order as
// data rather than hardcoding binary.LittleEndian/BigEndian.
package tapereader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gatea-dev/rtedge/internal/mappedstore"
	"github.com/gatea-dev/rtedge/internal/tape"
	"github.com/gatea-dev/rtedge/internal/wire"
)

// ErrEOF is returned by Read once the cursor reaches the header's
// recorded write offset. It wraps io.EOF so callers can test with
// errors.Is(err, io.EOF).
var ErrEOF = fmt.Errorf("tapereader: no more messages: %w", io.EOF)

// Message is one decoded tape record.
type Message struct {
	Header  tape.MsgHeader
	Time    time.Time
	Fields  []wire.Field
	Payload []byte // raw payload bytes, before field decoding
}

// Reader walks a tape file's message stream.
type Reader struct {
	path      string
	ms        *mappedstore.Store
	hdr       tape.Header
	order     binary.ByteOrder
	dataStart int64
	cursor    int64
}

// Open memory-maps path read-only and validates its header.
func Open(path string) (*Reader, error) {
	ms, err := mappedstore.Open(path, mappedstore.ReadOnly, 0)
	if err != nil {
		return nil, err
	}
	hdr, _, err := tape.DecodeHeader(ms.Bytes())
	if err != nil {
		ms.Close()
		return nil, err
	}

	r := &Reader{
		path:      path,
		ms:        ms,
		hdr:       hdr,
		order:     endianOrder(hdr.Endian),
		dataStart: tape.DataOffset(hdr),
	}
	r.cursor = r.dataStart
	return r, nil
}

func endianOrder(e tape.Endian) binary.ByteOrder {
	if e == tape.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Refresh re-reads the header (and remaps the file if it has grown
// past the current mapping) to pick up records an external writer has
// appended since Open. The cursor is left untouched.
func (r *Reader) Refresh() error {
	if err := r.remapIfGrown(); err != nil {
		return err
	}
	hdr, _, err := tape.DecodeHeader(r.ms.Bytes())
	if err != nil {
		return err
	}
	r.hdr = hdr
	return nil
}

func (r *Reader) remapIfGrown() error {
	fi, err := r.ms.Stat()
	if err != nil {
		return err
	}
	if fi.Size() <= int64(r.ms.Len()) {
		return nil
	}
	if err := r.ms.Close(); err != nil {
		return err
	}
	ms, err := mappedstore.Open(r.path, mappedstore.ReadOnly, 0)
	if err != nil {
		return err
	}
	r.ms = ms
	return nil
}

// Rewind resets the cursor to the first message in the file.
func (r *Reader) Rewind() {
	r.cursor = r.dataStart
}

// RewindTo seeks the cursor to the first message at or after t, using
// the daily per-bucket index to skip directly to the right
// neighborhood before scanning forward.
func (r *Reader) RewindTo(t time.Time) error {
	if err := r.Refresh(); err != nil {
		return err
	}
	buf := r.ms.Bytes()
	_, streamsEnd, err := tape.DecodeHeader(buf)
	if err != nil {
		return err
	}

	elapsed := t.Sub(dayStart(r.hdr))
	bucket := int(elapsed.Seconds()) / int(r.hdr.IndexGranularitySec)
	if bucket < 0 {
		r.cursor = r.dataStart
		return nil
	}
	if bucket >= int(r.hdr.IndexBuckets) {
		r.cursor = int64(r.hdr.WriteOffset)
		return nil
	}

	cursor := r.dataStart
	for b := bucket; b >= 0; b-- {
		off := binary.BigEndian.Uint64(buf[streamsEnd+b*8:])
		if off != 0 {
			cursor = int64(off)
			break
		}
	}
	r.cursor = cursor

	for r.cursor < int64(r.hdr.WriteOffset) {
		mh, err := tape.DecodeMsgHeader(buf[r.cursor:])
		if err != nil {
			return err
		}
		if !time.Unix(int64(mh.TVSec), int64(mh.TVUsec)*1000).Before(t) {
			break
		}
		r.cursor += int64(mh.Length)
	}
	return nil
}

func dayStart(hdr tape.Header) time.Time {
	c := hdr.CreatedAt
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, c.Location())
}

// Read decodes the message at the current cursor and advances past
// it, returning ErrEOF once the cursor reaches the recorded write
// offset.
func (r *Reader) Read() (Message, error) {
	if err := r.remapIfGrown(); err != nil {
		return Message{}, err
	}
	buf := r.ms.Bytes()
	writeOffset := int64(r.hdr.WriteOffset)
	if r.cursor >= writeOffset || r.cursor+tape.MsgHeaderLen > int64(len(buf)) {
		return Message{}, ErrEOF
	}

	mh, err := tape.DecodeMsgHeader(buf[r.cursor:])
	if err != nil {
		return Message{}, err
	}
	end := r.cursor + int64(mh.Length)
	if end > int64(len(buf)) {
		return Message{}, errors.New("tapereader: message overruns mapped region")
	}
	payload := buf[r.cursor+tape.MsgHeaderLen : end]

	fields, _, err := wire.DecodeFields(payload, r.order, int(mh.NUpd))
	if err != nil {
		fields = nil // payload may not be field-encoded (e.g. raw ByteStream chunk)
	}

	r.cursor = end
	return Message{
		Header:  mh,
		Time:    time.Unix(int64(mh.TVSec), int64(mh.TVUsec)*1000),
		Fields:  fields,
		Payload: payload,
	}, nil
}

// Streams returns the stream descriptor table recorded in the header,
// for callers (e.g. mdd-tape-dump) that need to resolve a message's
// DBIdx to a service/ticker name or list what streams a tape holds.
func (r *Reader) Streams() []tape.StreamDesc { return r.hdr.Streams }

// Close unmaps the file.
func (r *Reader) Close() error { return r.ms.Close() }
