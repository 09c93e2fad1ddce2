// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recordcache

import (
	"sync"
	"time"

	"github.com/gatea-dev/rtedge/internal/wire"
)

// UpdateKind distinguishes a conflated update from an unconflated
// (every-tick) message, per spec.md §4.6's "parallel queue" note.
type UpdateKind int

const (
	Conflated UpdateKind = iota
	Unconflated
)

// Update is one entry in the event FIFO: a stream identifier plus the
// fields that changed (or, for Unconflated, the exact message as sent).
type Update struct {
	StreamID int
	Key      Key
	Kind     UpdateKind
	Fields   []wire.Field
}

// Events is a bounded FIFO fed by the channel goroutine and drained by
// the application via Wait/GetOneUpd (spec.md §4.6). Conflated updates
// for the same stream are coalesced: if a stream already has an entry
// queued, a new Cache() merge updates that entry in place instead of
// enqueuing a second one. Unconflated messages always get their own
// entry.
type Events struct {
	mu       sync.Mutex
	queue    []*Update
	queuedAt map[int]*Update // stream id -> its single queued Conflated entry
	cap      int
	closed   bool

	signal chan struct{} // non-blocking "something happened" notice
}

// NewEvents returns a FIFO bounded to cap entries; 0 selects a default.
func NewEvents(cap int) *Events {
	if cap <= 0 {
		cap = 8192
	}
	return &Events{cap: cap, queuedAt: make(map[int]*Update), signal: make(chan struct{}, 1)}
}

// wake pings the signal channel without blocking if a waiter might be
// parked on it.
func (e *Events) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Push enqueues an update. A Conflated update for a stream id already
// queued is merged into the existing entry (its Fields slice extended,
// deduplicating by field id) rather than appending a new entry; an
// Unconflated update always appends. Returns false if the FIFO is full
// and the update could not be merged into an existing entry.
func (e *Events) Push(u Update) bool {
	e.mu.Lock()

	if u.Kind == Conflated {
		if existing, ok := e.queuedAt[u.StreamID]; ok {
			existing.Fields = mergeFields(existing.Fields, u.Fields)
			e.mu.Unlock()
			return true
		}
	}

	if len(e.queue) >= e.cap {
		e.mu.Unlock()
		return false
	}

	uc := u
	e.queue = append(e.queue, &uc)
	if u.Kind == Conflated {
		e.queuedAt[u.StreamID] = &uc
	}
	e.mu.Unlock()
	e.wake()
	return true
}

func mergeFields(dst, src []wire.Field) []wire.Field {
	idx := make(map[uint32]int, len(dst))
	for i, f := range dst {
		idx[f.ID] = i
	}
	for _, f := range src {
		if i, ok := idx[f.ID]; ok {
			dst[i] = f
		} else {
			idx[f.ID] = len(dst)
			dst = append(dst, f)
		}
	}
	return dst
}

// Wait blocks until an update is available or timeout elapses, then
// behaves like GetOneUpd. A zero or negative timeout waits forever.
func (e *Events) Wait(timeout time.Duration) (Update, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		if u, ok := e.GetOneUpd(); ok {
			return u, true
		}
		if e.isClosed() {
			return Update{}, false
		}
		select {
		case <-e.signal:
		case <-deadline:
			return Update{}, false
		}
	}
}

func (e *Events) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// GetOneUpd pops the oldest update without blocking.
func (e *Events) GetOneUpd() (Update, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Update{}, false
	}
	u := e.queue[0]
	e.queue = e.queue[1:]
	if e.queuedAt[u.StreamID] == u {
		delete(e.queuedAt, u.StreamID)
	}
	return *u, true
}

// Close wakes any blocked Wait callers permanently.
func (e *Events) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wake()
}
