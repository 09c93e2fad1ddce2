// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the calling goroutine's numeric id from its own
// stack trace header ("goroutine 123 [running]:"). The standard
// library deliberately exposes no goroutine-local storage or identity
// — none of the pack's example repos need one, since none implements
// a re-entrant lock — so this is the one place this module reaches
// past both stdlib and the example pack's dependency surface to
// satisfy a requirement the language has no public API for.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

// RecursiveMutex is a same-goroutine re-entrant mutex: repeat Lock
// calls from the goroutine already holding it just bump a counter: they
// neither block nor release any state until the matching number of
// Unlock calls bring the counter back to zero, per spec.md §5's "the
// internal mutex is recursive" requirement for Channel's coarse lock.
type RecursiveMutex struct {
	mu        sync.Mutex
	owner     uint64
	recursion int
}

// Lock acquires the mutex, or bumps the recursion count if the calling
// goroutine already holds it.
func (m *RecursiveMutex) Lock() {
	gid := goroutineID()
	if m.recursion > 0 && m.owner == gid {
		m.recursion++
		return
	}
	m.mu.Lock()
	m.owner = gid
	m.recursion = 1
}

// Unlock releases one level of recursion, unlocking the underlying
// mutex only once the count returns to zero. Unlock from a goroutine
// that does not hold the lock panics, matching sync.Mutex's own
// behavior on a double unlock.
func (m *RecursiveMutex) Unlock() {
	gid := goroutineID()
	if m.recursion == 0 || m.owner != gid {
		panic("pubsub: unlock of unheld recursive mutex")
	}
	m.recursion--
	if m.recursion == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}
