// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pubsub implements the application-facing PubSubChannel
// (spec.md §4.11): a Socket (or, in NATS-subject mode, a pkg/nats
// Client), a Codec, a Schema, and a RecordCache wired together behind
// Subscribe/Unsubscribe/Publish/SetSchema and an OnConnect/OnDisconnect/
// OnService/OnData/OnSchema event surface. Per spec.md §5, all of a
// Channel's I/O-thread state (the Socket, the decoder, the
// RecordCache) is mutated only from the Socket's own read goroutine;
// application threads only ever go through the coarse RecursiveMutex
// guarding this file's methods and through Events.Wait's FIFO drain.
package pubsub

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gatea-dev/rtedge/internal/iosock"
	"github.com/gatea-dev/rtedge/internal/recordcache"
	"github.com/gatea-dev/rtedge/internal/schema"
	"github.com/gatea-dev/rtedge/internal/wire"
	"github.com/gatea-dev/rtedge/pkg/log"
	"github.com/gatea-dev/rtedge/pkg/nats"
)

// Config selects a Channel's transport and tuning.
type Config struct {
	Socket iosock.Config
	Addrs  []iosock.Addr

	// NATS, if non-nil, switches the Channel to the alternate
	// NATS-subject transport mode instead of a framed Socket.
	NATS *nats.Config

	MaxStreams int
	EventsCap  int
}

// Channel is one MD-Direct pub/sub session.
type Channel struct {
	mu RecursiveMutex

	sock   *iosock.Socket
	natsC  *nats.Client
	codec  *wire.Codec
	dict   *schema.Dictionary
	cache  *recordcache.Cache
	events *recordcache.Events

	streams map[int]*stream
	byKey   map[recordcache.Key]int
	byTag   map[uint32]int // OPN tag -> stream id, for correlating inbound Image/Update/Status frames

	tag atomic.Uint32
	rtl atomic.Uint32

	recvBuf []byte // accumulates partial frames between OnRead callbacks

	OnConnect    func()
	OnDisconnect func(reason string)
	OnService    func(service string, status string)
	OnData       func(u recordcache.Update)
	OnSchema     func(fields []schema.Field)
}

// New builds a Channel. If cfg.NATS is set the Channel runs in
// NATS-subject transport mode; otherwise it dials cfg.Addrs over a
// framed iosock.Socket.
func New(cfg Config) (*Channel, error) {
	c := &Channel{
		codec:   wire.NewCodec(),
		dict:    schema.New(0),
		cache:   recordcache.New(cfg.MaxStreams),
		events:  recordcache.NewEvents(cfg.EventsCap),
		streams: make(map[int]*stream),
		byKey:   make(map[recordcache.Key]int),
		byTag:   make(map[uint32]int),
	}

	if cfg.NATS != nil {
		client, err := nats.NewClient(cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("pubsub: nats transport: %w", err)
		}
		c.natsC = client
		if c.OnConnect != nil {
			c.OnConnect()
		}
		return c, nil
	}

	c.sock = iosock.New(cfg.Socket)
	c.sock.Ping = func() []byte {
		return c.codec.EncodeMessage(wire.Header{DT: wire.DataPing, MT: wire.MsgPing, Protocol: c.codec.Protocol}, nil)
	}
	c.sock.OnRead = c.onSocketRead
	c.sock.OnConnect = func() {
		if c.OnConnect != nil {
			c.OnConnect()
		}
	}
	c.sock.OnDisconnect = func(reason string) {
		if c.OnDisconnect != nil {
			c.OnDisconnect(reason)
		}
	}
	if err := c.sock.Connect(cfg.Addrs); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Channel) nextTag() uint32 { return c.tag.Add(1) }

// wireTime returns the current 100-microsecond ticks since local
// midnight (spec.md §6's "time" header field).
func wireTime() uint32 {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return uint32(now.Sub(midnight) / (100 * time.Microsecond))
}

func (c *Channel) subject(key recordcache.Key) string {
	return key.Service + "." + key.Ticker
}

// write sends frame through whichever transport is active.
func (c *Channel) write(key recordcache.Key, frame []byte) error {
	if c.natsC != nil {
		return c.natsC.Publish(c.subject(key), frame)
	}
	if !c.sock.Write(frame) {
		log.Warnf("pubsub: write to %s overflowed the output buffer", key)
	}
	return nil
}

// Subscribe opens a stream for (service, ticker): assigns a local
// stream id, sends an OPN message (or, in NATS mode, subscribes to the
// stream's subject), and transitions the stream to Opened awaiting an
// image.
func (c *Channel) Subscribe(service, ticker string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := recordcache.Key{Service: service, Ticker: ticker}
	id, _ := c.cache.Open(key)
	tag := c.nextTag()
	st := &stream{id: id, key: key, tag: tag, state: Opened}
	c.streams[id] = st
	c.byKey[key] = id
	c.byTag[tag] = id

	if c.natsC != nil {
		subject := c.subject(key)
		if err := c.natsC.Subscribe(subject, func(_ string, data []byte) {
			c.dispatch(data)
		}); err != nil {
			return 0, fmt.Errorf("pubsub: subscribe %s: %w", subject, err)
		}
		return id, nil
	}

	hdr := wire.Header{Tag: tag, DT: wire.DataStatus, MT: wire.MsgOpen, Protocol: c.codec.Protocol, Time: wireTime(), RTL: c.rtl.Load()}
	frame := c.codec.EncodeMessage(hdr, []wire.Field{
		{ID: 1, Type: wire.TypeString, Raw: []byte(service)},
		{ID: 2, Type: wire.TypeString, Raw: []byte(ticker)},
	})
	if err := c.write(key, frame); err != nil {
		return 0, err
	}
	return id, nil
}

// Unsubscribe sends a CLS message for id and marks the stream pending
// removal; the stream is dropped from the cache once its ACK arrives,
// or immediately if the transport does not require one (NATS mode).
func (c *Channel) Unsubscribe(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.streams[id]
	if !ok {
		return fmt.Errorf("pubsub: unknown stream %d", id)
	}

	if c.natsC != nil {
		c.closeStream(id)
		return nil
	}

	st.ackRequired = true
	hdr := wire.Header{Tag: st.tag, DT: wire.DataStatus, MT: wire.MsgClose, Protocol: c.codec.Protocol, Time: wireTime(), RTL: c.rtl.Load()}
	frame := c.codec.EncodeMessage(hdr, nil)
	return c.write(st.key, frame)
}

func (c *Channel) closeStream(id int) {
	st, ok := c.streams[id]
	if !ok {
		return
	}
	st.state = Closed
	delete(c.streams, id)
	delete(c.byKey, st.key)
	delete(c.byTag, st.tag)
	c.cache.Close(id)
}

// Publish encodes and writes an image (first publication for key) or
// update (subsequent ones) carrying fields. The first Publish for a key
// assigns its stream a fresh tag, which every subsequent Image/Update/
// Status frame for that key echoes back so a subscriber can correlate
// them to its original OPN.
func (c *Channel) Publish(key recordcache.Key, fields []wire.Field) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byKey[key]
	var tag uint32
	dt := wire.DataUpdate
	mt := wire.MsgUpdate
	if !ok {
		id, _ = c.cache.Open(key)
		tag = c.nextTag()
		c.byKey[key] = id
		c.byTag[tag] = id
		c.streams[id] = &stream{id: id, key: key, tag: tag, state: Imaged}
		dt = wire.DataImage
		mt = wire.MsgImage
	} else {
		tag = c.streams[id].tag
	}

	hdr := wire.Header{Tag: tag, DT: dt, MT: mt, Protocol: c.codec.Protocol, Time: wireTime(), RTL: c.rtl.Load()}
	frame := c.codec.EncodeMessage(hdr, fields)
	if err := c.write(key, frame); err != nil {
		return err
	}
	if rec, ok := c.cache.Lookup(id); ok {
		rec.Cache(fields)
	}
	return nil
}

// SetSchema bulk-replaces the dictionary from an XML <schema> document.
func (c *Channel) SetSchema(doc []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dict.ReplaceXML(doc); err != nil {
		return err
	}
	if c.OnSchema != nil {
		c.OnSchema(c.dict.All())
	}
	return nil
}

// GetSchema returns the current dictionary's fields.
func (c *Channel) GetSchema() []schema.Field {
	return c.dict.All()
}

// SetProtocol switches the wire encoding, honoring spec.md §4.1's rule
// that this may only happen while the socket's output buffer is idle.
// In NATS transport mode, which has no shared output buffer to drain,
// the switch is made without that check.
func (c *Channel) SetProtocol(p wire.Protocol) error {
	if c.sock == nil {
		c.codec.SetProtocol(p)
		return nil
	}
	if !c.sock.Idle() {
		return fmt.Errorf("pubsub: cannot switch protocol while output buffer is non-idle")
	}
	c.codec.SetProtocol(p)
	return nil
}

// Wait blocks for the next application-visible update, per spec.md
// §5's Wait(timeout) suspension point.
func (c *Channel) Wait(timeout time.Duration) (recordcache.Update, bool) {
	return c.events.Wait(timeout)
}

// Stop marks the channel for shutdown: closes the socket (or NATS
// client) and the event FIFO so a pending Wait returns immediately
// with zero updates (spec.md §5's Cancellation rule).
func (c *Channel) Stop() {
	c.events.Close()
	if c.natsC != nil {
		c.natsC.Close()
		return
	}
	c.sock.Close()
}

func (c *Channel) onSocketRead(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvBuf = append(c.recvBuf, p...)

	for {
		if len(c.recvBuf) < 4 {
			return
		}
		length := binary.BigEndian.Uint32(c.recvBuf[:4])
		if uint32(len(c.recvBuf)) < length {
			return
		}
		frame := c.recvBuf[:length]
		c.recvBuf = c.recvBuf[length:]
		c.dispatch(frame)
	}
}

// dispatch decodes one complete frame and updates stream/cache/event
// state (spec.md §4.11's protocol state machine). It takes c.mu itself;
// c.mu is recursive so this is safe to call either from onSocketRead
// (already holding it) or a NATS subject handler.
func (c *Channel) dispatch(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hdr, fields, err := c.codec.DecodeMessage(frame)
	if err != nil {
		log.Warnf("pubsub: decode frame: %v", err)
		return
	}
	c.rtl.Store(hdr.RTL + 1)

	id, rec, key, ok := c.resolveStream(hdr.Tag)
	if !ok {
		return
	}

	applied := false
	switch hdr.MT {
	case wire.MsgImage:
		st := c.streams[id]
		if st != nil {
			st.state = Imaged
		}
		rec.Cache(fields)
		c.events.Push(recordcache.Update{StreamID: id, Key: key, Kind: recordcache.Conflated, Fields: fields})
		applied = true
	case wire.MsgUpdate:
		// An update is only merged once the stream has received its
		// first image (spec.md §3: "updates without an image are
		// discarded"); a stream still in Idle/Opened has no prior
		// image to update.
		st := c.streams[id]
		if st == nil || (st.state != Imaged && st.state != Updated) {
			break
		}
		st.state = Updated
		rec.Cache(fields)
		c.events.Push(recordcache.Update{StreamID: id, Key: key, Kind: recordcache.Conflated, Fields: fields})
		applied = true
	case wire.MsgStatus:
		if c.OnService != nil {
			c.OnService(key.Service, statusText(fields))
		}
	case wire.MsgClose, wire.MsgAck:
		if st, ok := c.streams[id]; ok && st.ackRequired {
			c.closeStream(id)
		}
	}

	if applied && c.OnData != nil {
		c.OnData(recordcache.Update{StreamID: id, Key: key, Fields: fields})
	}
}

// resolveStream finds the local stream id a reply tag belongs to. OPN
// frames carry no prior tag to resolve against — the remote end mints
// its own tag for them — so an inbound Image/Update/Status/Ack is only
// resolvable once Subscribe or Publish has already registered one.
func (c *Channel) resolveStream(tag uint32) (id int, rec *recordcache.Record, key recordcache.Key, ok bool) {
	id, ok = c.byTag[tag]
	if !ok {
		return 0, nil, recordcache.Key{}, false
	}
	st := c.streams[id]
	rec, ok = c.cache.Lookup(id)
	return id, rec, st.key, ok
}

func statusText(fields []wire.Field) string {
	for _, f := range fields {
		if f.Type == wire.TypeString {
			return string(f.Raw)
		}
	}
	return ""
}
