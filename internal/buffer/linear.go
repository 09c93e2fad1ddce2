// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buffer implements the linear and circular byte buffers used by
// the socket/pump I/O core (spec.md §4.2): a contiguous buffer that grows
// up to a hard cap, and a wrap-around ring with independent begin/end
// indices. Both share the same shape as the teacher's per-metric buffer
// chain (internal memorystore buffer.go in the example pack), generalized
// here from a fixed-capacity chain of float slices to a single growable
// byte region with watermarks.
package buffer

import (
	"errors"
	"io"
)

var ErrCapExceeded = errors.New("buffer: capacity exceeded")

// Linear is a contiguous byte region with a cursor, an allocated capacity,
// and a hard cap (spec.md §4.2).
type Linear struct {
	data  []byte
	cp    int // cursor: bytes currently held
	cap   int // hard cap
	total int64

	rawLog   io.Writer
	rawLogSz int
}

// NewLinear allocates a Linear buffer with the given initial size and hard cap.
func NewLinear(size, cap int) *Linear {
	if size > cap {
		size = cap
	}
	return &Linear{data: make([]byte, 0, size), cap: cap}
}

// SetRawLog tees outbound bytes written via Append to w (spec.md §4.2).
// The tee's byte count restarts each time it would pass the buffer's
// cap; w itself is never rotated or truncated.
func (l *Linear) SetRawLog(w io.Writer) { l.rawLog = w }

// Len returns the number of bytes currently held.
func (l *Linear) Len() int { return len(l.data) }

// Cap returns the hard cap.
func (l *Linear) Cap() int { return l.cap }

// NLeft returns the remaining capacity before the hard cap.
func (l *Linear) NLeft() int { return l.cap - len(l.data) }

// Bytes returns the held bytes. The returned slice aliases internal
// storage and is invalidated by the next mutating call.
func (l *Linear) Bytes() []byte { return l.data }

// grow doubles the allocated capacity until it can hold need bytes or the
// hard cap is hit; Grow preserves bytes [0, cursor).
func (l *Linear) grow(need int) bool {
	if need > l.cap {
		return false
	}
	if cap(l.data) >= need {
		return true
	}
	newCap := cap(l.data)
	if newCap == 0 {
		newCap = 64
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > l.cap {
		newCap = l.cap
	}
	nd := make([]byte, len(l.data), newCap)
	copy(nd, l.data)
	l.data = nd
	return true
}

// Append adds p to the buffer, growing as needed. It returns false without
// modifying the buffer if the append would exceed the hard cap.
func (l *Linear) Append(p []byte) bool {
	if len(l.data)+len(p) > l.cap {
		return false
	}
	if !l.grow(len(l.data) + len(p)) {
		return false
	}
	l.data = append(l.data, p...)
	l.total += int64(len(p))
	if l.rawLog != nil {
		if l.rawLogSz+len(p) > l.cap {
			l.rawLogSz = 0
		}
		l.rawLog.Write(p)
		l.rawLogSz += len(p)
	}
	return true
}

// Move compacts the buffer after `n` bytes starting at `from` have been
// consumed by the caller, shifting any remaining bytes down to offset 0.
func (l *Linear) Move(from, n int) {
	rest := l.data[from+n:]
	copy(l.data[:len(rest)], rest)
	l.data = l.data[:len(rest)]
}

// Reset empties the buffer without releasing its allocation.
func (l *Linear) Reset() {
	l.data = l.data[:0]
	l.rawLogSz = 0
}

// Total returns the running total of bytes ever appended.
func (l *Linear) Total() int64 { return l.total }
