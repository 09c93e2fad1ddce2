// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tape implements the append-only tape journal (spec.md
// §4.10/§6): a fixed header, a per-second daily index, and a sequence
// of fixed-per-message-header + payload records. Readers (see
// internal/tapereader) map the file read-only and detect new bytes by
// rereading the header's write offset, per spec.md §5's "tape file is
// written append-only by an external process" note. This writer side
// is grounded on internal/memorystore/avroCheckpoint.go's
// worker-pool-driven append-and-flush discipline, adapted from a
// single checkpoint blob to a continuously growing journal.
package tape

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SignatureCurrent is the current tape file signature (spec.md §6).
// SignatureLegacy004 is accepted on read.
const (
	SignatureCurrent   = "005 gateaRecorder"
	SignatureLegacy004 = "004"
)

const (
	sigLen = 20

	// Header: sig, hdrLen, fileSize, writeOffset, windowOffset,
	// windowSize, createdAt, endOfDay, endian, wordSize,
	// indexGranularitySec, indexBuckets, numStreams, totalMessages,
	// totalBytes.
	headerFixedLen = sigLen + 4 + 8 + 8 + 8 + 4 + 8 + 8 + 1 + 1 + 4 + 4 + 4 + 8 + 8

	streamDescLen = 4 + 64 + 8 // dbIdx, name, last sequence number

	// MsgHeaderLen is the fixed per-message header
	// (length, dbIdx, tv_sec, tv_usec, nUpd, nFldMod, bLast4, last)
	// per spec.md §6.
	MsgHeaderLen = 4 + 4 + 4 + 4 + 4 + 1 + 1 + 8
)

var (
	ErrBadSignature = errors.New("tape: bad or unrecognized signature")
	ErrNoFreeSlot   = errors.New("tape: stream descriptor table is full")
)

// Endian identifies the byte order the tape was written in.
type Endian uint8

const (
	LittleEndian Endian = 0
	BigEndian    Endian = 1
)

func hostEndian() Endian {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 0x0100)
	if buf[0] == 0x00 {
		return LittleEndian
	}
	return BigEndian
}

func (e Endian) byteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// HostByteOrder returns the byte order a Writer records in a new
// tape's header (hostEndian), for callers that need to encode payload
// field data consistent with what TapeReader will later assume.
func HostByteOrder() binary.ByteOrder {
	return hostEndian().byteOrder()
}

// StreamDesc is one per-stream record descriptor carried in the header
// (spec.md §4.1's "per-stream record descriptors").
type StreamDesc struct {
	DBIdx uint32
	Name  string
	Last  uint64 // last sequence number written for this stream
}

// Header mirrors the tape file's fixed header.
type Header struct {
	FileSize            uint64
	WriteOffset         uint64
	WindowOffset        uint64
	WindowSize          uint32
	CreatedAt           time.Time
	EndOfDay            time.Time
	Endian              Endian
	WordSize            uint8
	IndexGranularitySec uint32
	IndexBuckets        uint32
	Streams             []StreamDesc
	TotalMessages       uint64
	TotalBytes          uint64
}

// MsgHeader is the fixed per-message header preceding a payload
// (spec.md §6): length, dbIdx, tv_sec, tv_usec, nUpd, nFldMod, bLast4
// (final-fragment flag for chunked ByteStream payloads, per SPEC_FULL's
// Chain/Vector/ByteStream supplement), and last (a WireMold64-style
// monotonic per-stream sequence number, per SPEC_FULL's sequence-number
// supplement).
type MsgHeader struct {
	Length  uint32
	DBIdx   uint32
	TVSec   uint32
	TVUsec  uint32
	NUpd    uint32
	NFldMod uint8
	BLast4  bool
	Last    uint64
}

// Writer appends records to a tape file. It is the production side;
// TapeReader (internal/tapereader) is always read-only.
type Writer struct {
	mu       sync.Mutex
	f        *os.File
	hdr      Header
	index    []uint64 // bucket -> file offset of first message in that bucket
	dayStart time.Time
}

// Create creates a new tape file at path with the given index
// granularity (default 1 second if 0) and a single day's worth of
// buckets (86400/granularity). maxStreams reserves that many
// per-stream descriptor slots up front (default 1024 if 0): the
// descriptor table sits between the header and the message stream, so
// unlike the rest of the header its size must be fixed at creation
// time rather than grown as new streams are first seen.
func Create(path string, granularity time.Duration, maxStreams int) (*Writer, error) {
	if granularity <= 0 {
		granularity = time.Second
	}
	if maxStreams <= 0 {
		maxStreams = 1024
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("tape: create %s: %w", path, err)
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	buckets := uint32(86400 / int(granularity.Seconds()))

	hdr := Header{
		CreatedAt:           now,
		EndOfDay:            dayStart.Add(24 * time.Hour),
		Endian:              hostEndian(),
		WordSize:            8,
		IndexGranularitySec: uint32(granularity.Seconds()),
		IndexBuckets:        buckets,
		Streams:             make([]StreamDesc, maxStreams),
	}

	w := &Writer{f: f, hdr: hdr, index: make([]uint64, buckets), dayStart: dayStart}
	if err := w.writeHeaderAndIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) dataOffset() int64 {
	return DataOffset(w.hdr)
}

// DataOffset returns the byte offset where the message stream begins:
// past the fixed header, the stream descriptor table, and the daily
// index. Shared with internal/tapereader so both sides agree on
// layout from a decoded Header alone.
func DataOffset(hdr Header) int64 {
	return int64(headerFixedLen) + int64(len(hdr.Streams))*streamDescLen + int64(hdr.IndexBuckets)*8
}

func (w *Writer) writeHeaderAndIndex() error {
	buf := EncodeHeader(w.hdr)
	if _, err := w.f.WriteAt(buf, 0); err != nil {
		return err
	}
	idxBuf := make([]byte, len(w.index)*8)
	for i, off := range w.index {
		binary.BigEndian.PutUint64(idxBuf[i*8:], off)
	}
	_, err := w.f.WriteAt(idxBuf, int64(headerFixedLen)+int64(len(w.hdr.Streams))*streamDescLen)
	return err
}

// Append writes one record for stream dbIdx at time ts with payload,
// returning the assigned monotonic sequence number for that stream.
// name (typically "service.ticker") is recorded in the stream's
// descriptor slot the first time dbIdx is seen; later calls for the
// same dbIdx ignore it.
func (w *Writer) Append(dbIdx uint32, name string, ts time.Time, nUpd uint32, last4 bool, payload []byte) (seq uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq, err = w.nextSeq(dbIdx, name)
	if err != nil {
		return 0, err
	}

	elapsed := ts.Sub(w.dayStart)
	mh := MsgHeader{
		Length:  uint32(MsgHeaderLen + len(payload)),
		DBIdx:   dbIdx,
		TVSec:   uint32(ts.Unix()),
		TVUsec:  uint32(ts.Nanosecond() / 1000),
		NUpd:    nUpd,
		NFldMod: uint8(nUpd),
		BLast4:  last4,
		Last:    seq,
	}

	rec := EncodeMsgHeader(mh)
	rec = append(rec, payload...)

	offset := int64(w.hdr.WriteOffset)
	if offset == 0 {
		offset = w.dataOffset()
	}
	if _, err := w.f.WriteAt(rec, offset); err != nil {
		return 0, fmt.Errorf("tape: append: %w", err)
	}

	w.hdr.WriteOffset = uint64(offset) + uint64(len(rec))
	w.hdr.TotalMessages++
	w.hdr.TotalBytes += uint64(len(rec))

	bucket := int(elapsed.Seconds()) / int(w.hdr.IndexGranularitySec)
	if bucket >= 0 && bucket < len(w.index) && w.index[bucket] == 0 {
		w.index[bucket] = uint64(offset)
	}

	if err := w.writeHeaderAndIndex(); err != nil {
		return 0, err
	}
	return seq, nil
}

// nextSeq returns the next monotonic sequence number for dbIdx,
// assigning it a reserved descriptor slot on first use. The
// descriptor table's slot count is fixed at Create time (see
// dataOffset); ErrNoFreeSlot is returned once every slot is taken.
func (w *Writer) nextSeq(dbIdx uint32, name string) (uint64, error) {
	free := -1
	for i := range w.hdr.Streams {
		if w.hdr.Streams[i].Last > 0 && w.hdr.Streams[i].DBIdx == dbIdx {
			w.hdr.Streams[i].Last++
			return w.hdr.Streams[i].Last, nil
		}
		if free == -1 && w.hdr.Streams[i].Last == 0 {
			free = i
		}
	}
	if free == -1 {
		return 0, ErrNoFreeSlot
	}
	w.hdr.Streams[free] = StreamDesc{DBIdx: dbIdx, Name: name, Last: 1}
	return 1, nil
}

// Close flushes the header/index and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeHeaderAndIndex(); err != nil {
		return err
	}
	return w.f.Close()
}
