// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package chartstore implements the chart database file (spec.md
// §4.9/§6): fixed-shape records, each holding a circular array of
// 86,400/interval float samples that wraps at midnight. Grounded on
// internal/memorystore/buffer.go's circular-write-with-wrap math,
// replayed here against a fixed tick-count array (mmap-backed) instead
// of a growing in-heap chain.
package chartstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gatea-dev/rtedge/internal/mappedstore"
)

// Signature is the current chart file signature (spec.md §6).
const Signature = "002 ChartDb"

const (
	sigLen          = 16
	serviceFieldLen = 64
	tickerFieldLen  = 256
	secondsPerDay   = 86400
	headerFixedLen  = sigLen + 4 + 8 + 4 + 4 + 4 // sig, hdrLen, fileSize, freeSlot, recordCount, date(YYYYMMDD)
	recordFixedLen  = serviceFieldLen + tickerFieldLen + 4 + 4 + 4 + 4 + 8 + 8 + 4 // svc, tkr, idx, fid, interval, curTick, created, updated, updCount
)

var ErrBadSignature = errors.New("chartstore: bad or unrecognized signature")

// Header mirrors the chart file's fixed header.
type Header struct {
	HeaderLen   uint32
	FileSize    uint64
	FreeSlot    uint32
	RecordCount uint32
	Date        uint32 // YYYYMMDD
}

// Entry identifies one chart record (spec.md's Query() enumeration).
type Entry struct {
	Service  string
	Ticker   string
	Index    uint32
	FieldID  uint32
	Interval time.Duration
}

// View is a read-only window onto one record's circular float array.
type View struct {
	Entry
	CurTick  uint32
	TickCnt  uint32
	Created  time.Time
	Updated  time.Time
	Updates  uint32
	samples  []float64
}

// Samples returns the full circular array, index i holding the sample
// for (today-local-midnight + i*Interval); callers must compute age
// against CurTick themselves (spec.md §4.9).
func (v View) Samples() []float64 { return v.samples }

// At returns the sample recorded curTick-relative offset i ago.
func (v View) At(i int) float64 {
	n := len(v.samples)
	idx := (int(v.CurTick) - i%n + n) % n
	return v.samples[idx]
}

// Store is a memory-mapped chart database, open read-only.
type Store struct {
	ms      *mappedstore.Store
	hdr     Header
	records []recordWindow
}

type recordWindow struct {
	entry Entry
	raw   []byte // recordFixedLen + tickCount*8 bytes
}

// Open memory-maps path and validates its header.
func Open(path string) (*Store, error) {
	ms, err := mappedstore.Open(path, mappedstore.ReadOnly, 0)
	if err != nil {
		return nil, err
	}

	buf := ms.Bytes()
	if len(buf) < headerFixedLen {
		ms.Close()
		return nil, fmt.Errorf("chartstore: %w: file too short", ErrBadSignature)
	}
	sig := trimNulls(buf[:sigLen])
	if sig != Signature {
		ms.Close()
		return nil, fmt.Errorf("chartstore: %w: %q", ErrBadSignature, sig)
	}

	off := sigLen
	hdr := Header{}
	hdr.HeaderLen = binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.FileSize = binary.BigEndian.Uint64(buf[off:])
	off += 8
	hdr.FreeSlot = binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.RecordCount = binary.BigEndian.Uint32(buf[off:])
	off += 4
	hdr.Date = binary.BigEndian.Uint32(buf[off:])

	s := &Store{ms: ms, hdr: hdr}
	if err := s.indexRecords(int(hdr.HeaderLen)); err != nil {
		ms.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) indexRecords(off int) error {
	buf := s.ms.Bytes()
	for i := uint32(0); i < s.hdr.RecordCount; i++ {
		if off+recordFixedLen > len(buf) {
			return fmt.Errorf("chartstore: truncated record table")
		}
		entry, tickCnt, err := decodeRecordHead(buf[off : off+recordFixedLen])
		if err != nil {
			return err
		}
		total := recordFixedLen + int(tickCnt)*8
		if off+total > len(buf) {
			return fmt.Errorf("chartstore: record %d sample array overruns file", i)
		}
		s.records = append(s.records, recordWindow{entry: entry, raw: buf[off : off+total]})
		off += total
	}
	return nil
}

func decodeRecordHead(buf []byte) (Entry, uint32, error) {
	off := 0
	service := trimNulls(buf[off : off+serviceFieldLen])
	off += serviceFieldLen
	ticker := trimNulls(buf[off : off+tickerFieldLen])
	off += tickerFieldLen
	idx := binary.BigEndian.Uint32(buf[off:])
	off += 4
	fid := binary.BigEndian.Uint32(buf[off:])
	off += 4
	intervalSec := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if intervalSec == 0 {
		return Entry{}, 0, fmt.Errorf("chartstore: zero interval")
	}
	tickCnt := uint32(secondsPerDay) / intervalSec

	return Entry{
		Service:  service,
		Ticker:   ticker,
		Index:    idx,
		FieldID:  fid,
		Interval: time.Duration(intervalSec) * time.Second,
	}, tickCnt, nil
}

func trimNulls(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// Query enumerates every (service, ticker, field id, interval) record
// in the file.
func (s *Store) Query() []Entry {
	out := make([]Entry, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.entry)
	}
	return out
}

// View returns a read-only window onto (service, ticker, fid)'s
// circular float array, or false if no matching record exists.
func (s *Store) View(service, ticker string, fid uint32) (View, bool) {
	for _, r := range s.records {
		if r.entry.Service == service && r.entry.Ticker == ticker && r.entry.FieldID == fid {
			return decodeView(r), true
		}
	}
	return View{}, false
}

func decodeView(r recordWindow) View {
	off := serviceFieldLen + tickerFieldLen + 4 + 4 + 4
	curTick := binary.BigEndian.Uint32(r.raw[off:])
	off += 4
	created := int64(binary.BigEndian.Uint64(r.raw[off:]))
	off += 8
	updated := int64(binary.BigEndian.Uint64(r.raw[off:]))
	off += 8
	updCount := binary.BigEndian.Uint32(r.raw[off:])
	off += 4

	tickCnt := (len(r.raw) - recordFixedLen) / 8
	samples := make([]float64, tickCnt)
	for i := 0; i < tickCnt; i++ {
		bits := binary.BigEndian.Uint64(r.raw[off+i*8:])
		samples[i] = math.Float64frombits(bits)
	}

	return View{
		Entry:   r.entry,
		CurTick: curTick,
		TickCnt: uint32(tickCnt),
		Created: time.Unix(0, created),
		Updated: time.Unix(0, updated),
		Updates: updCount,
		samples: samples,
	}
}

// Close unmaps the file.
func (s *Store) Close() error { return s.ms.Close() }
