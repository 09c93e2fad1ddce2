// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lvc implements the last-value cache file (spec.md §4.8/§6): a
// memory-mapped, cross-process shared store of (service, ticker) →
// latest field values. It is grounded on internal/memorystore's
// header-then-slots read path (checkpoint.go), generalized from an
// in-process Avro checkpoint to a live, lock-coordinated mmap file.
package lvc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gatea-dev/rtedge/internal/mappedstore"
	"github.com/gatea-dev/rtedge/internal/schema"
	"github.com/gatea-dev/rtedge/internal/wire"
)

// SignatureCurrent is the current LVC file signature (spec.md §6).
// SignaturesLegacy are accepted on read for backward compatibility.
const SignatureCurrent = "006 LVC-BINARY"

var SignaturesLegacy = []string{"002 LVC", "003 LVC", "004 LVC", "005 LVC"}

const (
	sigFieldLen     = 16
	serviceFieldLen = 64
	tickerFieldLen  = 255
	headerFixedLen  = sigFieldLen + 4 + 8 + 4 + 4 + 4 + 1 // sig, hdrLen, fileSize, freeIdx, fieldCount, numServices, binText
)

// ErrBadSignature is returned when a file's signature is neither
// current nor a recognized legacy form.
var ErrBadSignature = errors.New("lvc: bad or unrecognized signature")

// ErrTimedOut is returned by Snap when the cross-process lock could not
// be acquired within the configured wait bound.
var ErrTimedOut = mappedstore.ErrTimedOut

// Header mirrors the LVC file's fixed header (spec.md §4.1's header
// field list, applied to this file format rather than the wire
// envelope): file size, free slot index, header length, field count,
// recognized service count, and a binary/text flag for the legacy
// decoder path.
type Header struct {
	Signature   string
	HeaderLen   uint32
	FileSize    uint64
	FreeIndex   uint32
	FieldCount  uint32
	NumServices uint32
	BinaryText  uint8 // 1 = binary (current), 0 = legacy text
}

// Record is one decoded LVC slot.
type Record struct {
	Service string
	Ticker  string
	Active  bool
	Created time.Time
	Updated time.Time
	Dead    time.Time
	Updates uint32
	Fields  []wire.Field
}

// Store is a read-only view of an LVC file.
type Store struct {
	mu     sync.Mutex
	ms     *mappedstore.Store
	hdr    Header
	dict   *schema.Dictionary
	slots  [][]byte // raw byte windows for each slot, lazily sliced
	filter map[int]bool
	wait   time.Duration
}

// Open memory-maps path and validates its signature and header.
func Open(path string) (*Store, error) {
	ms, err := mappedstore.Open(path, mappedstore.ReadOnly, 0)
	if err != nil {
		return nil, err
	}

	hdr, dict, slotOff, err := decodeHeader(ms.Bytes())
	if err != nil {
		ms.Close()
		return nil, err
	}

	s := &Store{ms: ms, hdr: hdr, dict: dict, wait: -1}
	if err := s.indexSlots(slotOff); err != nil {
		ms.Close()
		return nil, err
	}
	return s, nil
}

func decodeHeader(buf []byte) (Header, *schema.Dictionary, int, error) {
	if len(buf) < headerFixedLen {
		return Header{}, nil, 0, fmt.Errorf("lvc: %w: file too short", ErrBadSignature)
	}

	sig := trimNulls(buf[:sigFieldLen])
	if !validSignature(sig) {
		return Header{}, nil, 0, fmt.Errorf("lvc: %w: %q", ErrBadSignature, sig)
	}

	off := sigFieldLen
	hdrLen := binary.BigEndian.Uint32(buf[off:])
	off += 4
	fileSize := binary.BigEndian.Uint64(buf[off:])
	off += 8
	freeIdx := binary.BigEndian.Uint32(buf[off:])
	off += 4
	fieldCount := binary.BigEndian.Uint32(buf[off:])
	off += 4
	numServices := binary.BigEndian.Uint32(buf[off:])
	off += 4
	binText := buf[off]
	off += 1

	hdr := Header{
		Signature:   sig,
		HeaderLen:   hdrLen,
		FileSize:    fileSize,
		FreeIndex:   freeIdx,
		FieldCount:  fieldCount,
		NumServices: numServices,
		BinaryText:  binText,
	}

	dict := schema.New(0)
	fields := make([]schema.Field, 0, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		if off+4+1+64 > len(buf) {
			return Header{}, nil, 0, fmt.Errorf("lvc: truncated schema table")
		}
		fid := int(binary.BigEndian.Uint32(buf[off:]))
		off += 4
		typ := wire.Type(buf[off])
		off += 1
		name := trimNulls(buf[off : off+64])
		off += 64
		fields = append(fields, schema.Field{ID: fid, Name: name, Type: typ})
	}
	dict.Replace(fields)

	return hdr, dict, int(hdrLen), nil
}

func validSignature(sig string) bool {
	if sig == SignatureCurrent {
		return true
	}
	for _, s := range SignaturesLegacy {
		if sig == s {
			return true
		}
	}
	return false
}

func trimNulls(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// indexSlots scans fixed-shape slots starting at slotOff until the
// mapped region is exhausted, recording each slot's byte window for
// lazy decode in Snap/SnapAll.
func (s *Store) indexSlots(slotOff int) error {
	buf := s.ms.Bytes()
	for off := slotOff; off < len(buf); {
		slotLen, err := peekSlotLen(buf[off:])
		if err != nil {
			return err
		}
		if slotLen == 0 {
			break
		}
		s.slots = append(s.slots, buf[off:off+slotLen])
		off += slotLen
	}
	return nil
}

// SetFilter restricts subsequent Snap/SnapAll decodes to the given
// field id subset (spec.md §4.8).
func (s *Store) SetFilter(fids []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fids) == 0 {
		s.filter = nil
		return
	}
	s.filter = make(map[int]bool, len(fids))
	for _, f := range fids {
		s.filter[f] = true
	}
}

// SetWait overrides the semaphore wait bound used by Snap; a negative
// value (the default) waits indefinitely.
func (s *Store) SetWait(d time.Duration) {
	s.mu.Lock()
	s.wait = d
	s.mu.Unlock()
}

// Schema returns the dictionary inlined at the file head.
func (s *Store) Schema() *schema.Dictionary { return s.dict }

// Snap returns a point-in-time copy of the (service, ticker) slot,
// acquiring the cross-process lock for the duration of the copy
// (spec.md §4.8). A missing stream returns (Record{}, false, nil).
func (s *Store) Snap(service, ticker string) (Record, bool, error) {
	s.mu.Lock()
	wait := s.wait
	filter := s.filter
	s.mu.Unlock()

	if err := s.ms.LockTimeout(false, wait); err != nil {
		return Record{}, false, err
	}
	defer s.ms.Unlock()

	for _, raw := range s.slots {
		rec, ok, err := decodeSlot(raw, s.dict, filter)
		if err != nil {
			return Record{}, false, err
		}
		if ok && rec.Service == service && rec.Ticker == ticker && rec.Active {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// SnapAll iterates every active record slot in the file.
func (s *Store) SnapAll() ([]Record, error) {
	s.mu.Lock()
	wait := s.wait
	filter := s.filter
	s.mu.Unlock()

	if err := s.ms.LockTimeout(false, wait); err != nil {
		return nil, err
	}
	defer s.ms.Unlock()

	out := make([]Record, 0, len(s.slots))
	for _, raw := range s.slots {
		rec, ok, err := decodeSlot(raw, s.dict, filter)
		if err != nil {
			return nil, err
		}
		if ok && rec.Active {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close unmaps the file.
func (s *Store) Close() error { return s.ms.Close() }
