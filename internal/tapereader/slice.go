// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tapereader

import (
	"time"

	"github.com/gatea-dev/rtedge/internal/wire"
)

// Snapshot is one conflated, interval-sampled view of a stream's
// last-known field values as of a point in tape time.
type Snapshot struct {
	StreamID uint32
	At       time.Time
	Fields   []wire.Field
}

// TapeSlice runs a bounded replay query over a tape (spec.md §4.10),
// either over a wall-clock window with an optional sampling interval
// and field-id whitelist, or over a fixed run of raw messages starting
// at an absolute byte offset. It keeps a per-stream last-value map so
// an interval-sampled query can emit a value for streams that didn't
// publish exactly on a sample boundary, the same conflate-on-read
// discipline internal/recordcache.Record uses for pending updates.
type TapeSlice struct {
	r      *Reader
	fields map[int]bool // nil means no filter
	last   map[uint32]map[int]wire.Field
}

// NewTapeSlice wraps r. fieldIDs, if non-empty, restricts every
// Snapshot to those field ids.
func NewTapeSlice(r *Reader, fieldIDs []int) *TapeSlice {
	ts := &TapeSlice{r: r, last: make(map[uint32]map[int]wire.Field)}
	if len(fieldIDs) > 0 {
		ts.fields = make(map[int]bool, len(fieldIDs))
		for _, id := range fieldIDs {
			ts.fields[id] = true
		}
	}
	return ts
}

func (ts *TapeSlice) apply(streamID uint32, fields []wire.Field) {
	m := ts.last[streamID]
	if m == nil {
		m = make(map[int]wire.Field)
		ts.last[streamID] = m
	}
	for _, f := range fields {
		if ts.fields != nil && !ts.fields[int(f.ID)] {
			continue
		}
		m[int(f.ID)] = f
	}
}

func (ts *TapeSlice) snapshot(streamID uint32, at time.Time) Snapshot {
	m := ts.last[streamID]
	out := make([]wire.Field, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	return Snapshot{StreamID: streamID, At: at, Fields: out}
}

// Window runs the query over [start, end): if interval is 0, one
// Snapshot is emitted per message in range (filtered to fields, if
// set); otherwise a Snapshot is emitted for every stream touched since
// the previous boundary, once per interval tick.
func (ts *TapeSlice) Window(start, end time.Time, interval time.Duration) ([]Snapshot, error) {
	if err := ts.r.RewindTo(start); err != nil {
		return nil, err
	}

	var out []Snapshot
	nextTick := start.Add(interval)
	dirty := make(map[uint32]bool)

	for {
		msg, err := ts.r.Read()
		if err != nil {
			if err == ErrEOF {
				break
			}
			return nil, err
		}
		if !msg.Time.Before(end) {
			break
		}

		ts.apply(msg.Header.DBIdx, msg.Fields)

		if interval <= 0 {
			out = append(out, ts.snapshot(msg.Header.DBIdx, msg.Time))
			continue
		}

		dirty[msg.Header.DBIdx] = true
		for !msg.Time.Before(nextTick) {
			for sid := range dirty {
				out = append(out, ts.snapshot(sid, nextTick))
			}
			dirty = make(map[uint32]bool)
			nextTick = nextTick.Add(interval)
		}
	}
	return out, nil
}

// Run reads up to count raw messages starting at byte offset
// startOffset (fewer if the tape ends first), with no conflation or filtering — the (start offset,
// message count) form of the bounded query.
func (ts *TapeSlice) Run(startOffset int64, count int) ([]Message, error) {
	ts.r.cursor = startOffset
	out := make([]Message, 0, count)
	for i := 0; i < count; i++ {
		msg, err := ts.r.Read()
		if err != nil {
			if err == ErrEOF {
				break
			}
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
