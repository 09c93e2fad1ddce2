// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package iosock implements the per-connection socket state machine
// (spec.md §4.4). The spec's C lineage drives a single-threaded
// non-blocking reactor (Pump) over raw fds; the idiomatic Go translation
// used here instead gives each Socket its own read goroutine and a
// mutex-serialized write path draining into net.Conn, which is the same
// connection-lifecycle shape pkg/nats/client.go gets for free from
// nats.go and that this package must hand-build for a raw TCP/UDP
// stream, since the teacher never talks to a socket directly.
package iosock

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/gatea-dev/rtedge/internal/buffer"
	"github.com/gatea-dev/rtedge/pkg/log"
)

// State is the Socket's connection lifecycle (spec.md §4.4).
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Addr is one (host, port) candidate in a Connect sweep.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// Config controls dialing, watermarks, and heartbeat timing.
type Config struct {
	Network        string // "tcp" or "udp"
	Randomize      bool   // shuffle the Addr sweep order
	OutCap         int    // output ring buffer hard cap
	HiWatermark    float64
	LoWatermark    float64
	HeartbeatEvery time.Duration // interval between required reads
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.OutCap <= 0 {
		c.OutCap = 1 << 20
	}
	if c.HiWatermark <= 0 {
		c.HiWatermark = 0.8
	}
	if c.LoWatermark <= 0 {
		c.LoWatermark = 0.4
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// Socket is a single client connection with a bounded output ring
// buffer, watermark callbacks, an overflow staging region, and a
// heartbeat timeout (spec.md §4.4).
type Socket struct {
	cfg  Config
	conn net.Conn

	mu    sync.Mutex // serializes writes, state transitions, conn swap
	state State
	out   *buffer.Circular

	// overflow holds bytes that did not fit in out's hard cap. It has
	// its own mutex per spec.md §9(b): draining overflow back into out
	// must not contend with ordinary Write's append path, which only
	// needs out's own internal bookkeeping (Circular is not itself
	// locked; Socket is the lock boundary around it).
	ovMu     sync.Mutex
	overflow []byte

	lastRecv time.Time
	stopCh   chan struct{}
	stopOnce sync.Once

	OnConnect    func()
	OnDisconnect func(reason string)
	OnRead       func(p []byte)
	OnQHiMark    func()
	OnQLoMark    func()

	// Ping builds the protocol-level ping frame to send on heartbeat
	// silence; the Channel wires this to Codec's Ping message encoder.
	Ping func() []byte
}

// New returns an idle Socket with no connection yet.
func New(cfg Config) *Socket {
	cfg = cfg.withDefaults()
	s := &Socket{
		cfg:    cfg,
		state:  Idle,
		out:    buffer.NewCircular(cfg.OutCap),
		stopCh: make(chan struct{}),
	}
	s.out.SetWatermarks(cfg.HiWatermark, cfg.LoWatermark)
	return s
}

// State returns the current connection state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Idle reports whether the socket is connected and its output buffer is
// fully drained — the condition Channel.SetProtocol checks before
// switching protocols (spec.md's binary/XML switch rule).
func (s *Socket) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected && s.out.Len() == 0 && len(s.overflow) == 0
}

// Connect sweeps addrs, optionally randomized, trying each until one
// dial succeeds. On success it starts the read loop and heartbeat
// monitor goroutines.
func (s *Socket) Connect(addrs []Addr) error {
	if len(addrs) == 0 {
		return errors.New("iosock: no addresses")
	}
	order := append([]Addr(nil), addrs...)
	if s.cfg.Randomize {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	s.setState(Connecting)

	var lastErr error
	for _, a := range order {
		conn, err := net.DialTimeout(s.cfg.Network, a.String(), s.cfg.DialTimeout)
		if err != nil {
			lastErr = err
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.state = Connected
		s.lastRecv = time.Now()
		s.mu.Unlock()

		go s.readLoop()
		go s.heartbeatLoop()

		if s.OnConnect != nil {
			s.OnConnect()
		}
		return nil
	}

	s.setState(Disconnected)
	return fmt.Errorf("iosock: connect failed: %w", lastErr)
}

func (s *Socket) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Write appends p to the output buffer, draining inline when possible.
// It returns false without blocking or closing the connection if p
// would overflow the hard cap; the output buffer is filled up to cap
// and only the excess is staged in a protected overflow region instead
// (spec.md §4.4).
func (s *Socket) Write(p []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	hi, _, ok := s.out.Push(p)
	if !ok {
		accepted, hiMark := s.out.PushFill(p)
		if hiMark && s.OnQHiMark != nil {
			s.OnQHiMark()
		}
		s.stageOverflow(p[accepted:])
		s.drainLocked()
		return false
	}
	if hi && s.OnQHiMark != nil {
		s.OnQHiMark()
	}
	s.drainLocked()
	return true
}

func (s *Socket) stageOverflow(p []byte) {
	s.ovMu.Lock()
	s.overflow = append(s.overflow, p...)
	s.ovMu.Unlock()
}

// drainLocked writes as much of out as the connection accepts. Caller
// holds s.mu.
func (s *Socket) drainLocked() {
	if s.conn == nil {
		return
	}
	_, lo, err := s.out.WriteOut(s.conn)
	if err != nil {
		log.Warnf("iosock: write error: %v", err)
		return
	}
	if lo && s.OnQLoMark != nil {
		s.OnQLoMark()
	}
	s.drainOverflowLocked()
}

// drainOverflowLocked moves as much of the staged overflow back into
// out as now fits, per spec.md §9(b)'s shared-mutex requirement between
// overflow staging and its drain path.
func (s *Socket) drainOverflowLocked() {
	s.ovMu.Lock()
	defer s.ovMu.Unlock()
	if len(s.overflow) == 0 {
		return
	}
	room := s.out.Cap() - s.out.Len()
	if room <= 0 {
		return
	}
	n := room
	if n > len(s.overflow) {
		n = len(s.overflow)
	}
	if _, _, ok := s.out.Push(s.overflow[:n]); ok {
		s.overflow = s.overflow[n:]
	}
}

func (s *Socket) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.lastRecv = time.Now()
			s.mu.Unlock()
			if s.OnRead != nil {
				s.OnRead(append([]byte(nil), buf[:n]...))
			}
		}
		if err != nil {
			s.disconnect(err.Error())
			return
		}
	}
}

// heartbeatLoop pings every second if no bytes have arrived within
// cfg.HeartbeatEvery, and disconnects after 3x that interval with no
// traffic at all (spec.md §4.4).
func (s *Socket) heartbeatLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state != Connected {
				s.mu.Unlock()
				return
			}
			silence := time.Since(s.lastRecv)
			s.mu.Unlock()

			if silence >= 3*s.cfg.HeartbeatEvery {
				s.disconnect("heartbeat timeout")
				return
			}
			if silence >= s.cfg.HeartbeatEvery && s.Ping != nil {
				s.Write(s.Ping())
			}
		}
	}
}

func (s *Socket) disconnect(reason string) {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.OnDisconnect != nil {
		s.OnDisconnect(reason)
	}
}

// Close tears down the connection unconditionally.
func (s *Socket) Close() {
	s.disconnect("closed")
}
