// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package recordcache implements the per-stream conflated cache
// (spec.md §4.6): each stream holds a field-id → Field map plus an
// ordered "pending" set of fields changed since the last application
// read. It generalizes the teacher's internal/memorystore buffer/level
// tree — which conflates float samples per metric under a per-node
// mutex — from a single float value per sample to an arbitrary Field
// map per record.
package recordcache

import (
	"sync"

	"github.com/gatea-dev/rtedge/internal/wire"
)

// Key identifies a stream by (service, ticker) as well as a numeric
// stream id assigned at Open time.
type Key struct {
	Service string
	Ticker  string
}

// Record is a single conflated stream: a field-id → Field hash and the
// ordered set of field ids updated since the last GetUpds call. A
// per-record mutex protects both maps (spec.md §4.6).
type Record struct {
	mu      sync.Mutex
	fields  map[int]wire.Field
	pending []int
	inPend  map[int]bool
}

func newRecord() *Record {
	return &Record{
		fields: make(map[int]wire.Field),
		inPend: make(map[int]bool),
	}
}

// Cache merges an incoming field list into the record: each field
// replaces the stored value (or is newly added), and is appended to the
// pending set if not already present (spec.md §4.6).
func (r *Record) Cache(fields []wire.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range fields {
		id := int(f.ID)
		r.fields[id] = f
		if !r.inPend[id] {
			r.inPend[id] = true
			r.pending = append(r.pending, id)
		}
	}
}

// GetUpds copies the pending fields into dst (growing it if needed),
// clears the pending set, and returns the slice actually filled.
func (r *Record) GetUpds(dst []wire.Field) []wire.Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst = dst[:0]
	for _, id := range r.pending {
		dst = append(dst, r.fields[id])
		delete(r.inPend, id)
	}
	r.pending = r.pending[:0]
	return dst
}

// Snapshot returns every field currently held, in no particular order.
func (r *Record) Snapshot() []wire.Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Field, 0, len(r.fields))
	for _, f := range r.fields {
		out = append(out, f)
	}
	return out
}

// Field looks up a single field by id.
func (r *Record) Field(id int) (wire.Field, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fields[id]
	return f, ok
}
