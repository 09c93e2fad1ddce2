// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pump is the idiomatic Go translation of the spec's
// single-threaded fd-reactor (spec.md §4.3). Since each iosock.Socket
// already owns its own read goroutine and a mutex-serialized write path
// (see internal/iosock), Pump's remaining job is the timer wheel and
// idle-callback list: a single goroutine driven by a ≤100ms ticker,
// matching the spec's loop deadline, that services one-shot/repeating
// timers and idle callbacks in order and defers Add/Remove to the next
// tick exactly as spec.md §4.3 requires. It is grounded on
// pkg/nats/client.go's single registration/dispatch goroutine shape,
// translated from NATS's internal event loop into an explicit
// ticker-driven select.
package pump

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tick is the loop's service granularity, matching spec.md §4.3's
// "≤100 ms deadline" for the platform multiplex call.
const tick = 100 * time.Millisecond

// TimerID identifies a timer registered with Pump.
type TimerID uint64

type timer struct {
	id       TimerID
	interval time.Duration
	repeat   bool
	next     time.Time
	fn       func()
	removed  bool
}

// Pump is the loop owner: a table of timers and a list of idle
// callbacks, serviced once per tick. Add/Remove calls made from other
// goroutines (including from inside a callback) are queued and applied
// at the start of the next tick, matching spec.md §4.3's "Add/Remove
// during dispatch are deferred to the next loop turn."
type Pump struct {
	mu      sync.Mutex
	timers  map[TimerID]*timer
	idle    []func()
	nextID  TimerID
	pending []func(*Pump) // deferred mutations, applied at tick start

	loopIterations prometheus.Counter
	idleInvocations prometheus.Counter

	// iterations/idleCalls mirror the Prometheus counters above in plain
	// atomics, for the /debug/vars introspection endpoint (see debug.go)
	// to read without pulling in the Prometheus testutil just to sample
	// its own counters back out.
	iterations atomic.Uint64
	idleCalls  atomic.Uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Pump with its Prometheus counters registered against
// reg. Pass prometheus.NewRegistry() in tests to avoid collisions with
// the default global registry.
func New(reg prometheus.Registerer) *Pump {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Pump{
		timers: make(map[TimerID]*timer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		loopIterations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rtedge_pump_loop_iterations_total",
			Help: "Number of Pump loop iterations serviced.",
		}),
		idleInvocations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rtedge_pump_idle_invocations_total",
			Help: "Number of idle callback invocations.",
		}),
	}
	return p
}

// AddTimer schedules fn to run after interval, once or repeatedly.
func (p *Pump) AddTimer(interval time.Duration, repeat bool, fn func()) TimerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.pending = append(p.pending, func(pp *Pump) {
		pp.timers[id] = &timer{id: id, interval: interval, repeat: repeat, next: time.Now().Add(interval), fn: fn}
	})
	return id
}

// RemoveTimer cancels a previously added timer. Safe to call from
// within a timer or idle callback.
func (p *Pump) RemoveTimer(id TimerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, func(pp *Pump) {
		if t, ok := pp.timers[id]; ok {
			t.removed = true
			delete(pp.timers, id)
		}
	})
}

// AddIdle registers a callback invoked once per tick after timer
// service, in registration order.
func (p *Pump) AddIdle(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, func(pp *Pump) {
		pp.idle = append(pp.idle, fn)
	})
}

// Run drives the loop until Stop is called. It is meant to run in its
// own goroutine for the lifetime of the process or Channel.
func (p *Pump) Run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.serviceTick()
		}
	}
}

func (p *Pump) serviceTick() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	for _, mut := range pending {
		mut(p)
	}
	now := time.Now()
	var due []*timer
	for _, t := range p.timers {
		if !t.removed && !now.Before(t.next) {
			due = append(due, t)
			if t.repeat {
				t.next = now.Add(t.interval)
			} else {
				delete(p.timers, t.id)
			}
		}
	}
	idle := append([]func(){}, p.idle...)
	p.mu.Unlock()

	p.loopIterations.Inc()
	p.iterations.Add(1)
	for _, t := range due {
		t.fn()
	}
	for _, fn := range idle {
		fn()
		p.idleInvocations.Inc()
		p.idleCalls.Add(1)
	}
}

// Stop halts the loop and blocks until the goroutine started by Run has
// exited.
func (p *Pump) Stop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
}
