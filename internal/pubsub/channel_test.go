// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatea-dev/rtedge/internal/iosock"
	"github.com/gatea-dev/rtedge/internal/recordcache"
	"github.com/gatea-dev/rtedge/internal/schema"
	"github.com/gatea-dev/rtedge/internal/wire"
)

// newTestChannel builds a Channel with a disconnected Socket (no dial,
// no read goroutine) so unit tests can drive Publish/dispatch directly
// without real network I/O.
func newTestChannel() *Channel {
	c := &Channel{
		codec:   wire.NewCodec(),
		dict:    schema.New(0),
		cache:   recordcache.New(0),
		events:  recordcache.NewEvents(0),
		streams: make(map[int]*stream),
		byKey:   make(map[recordcache.Key]int),
		byTag:   make(map[uint32]int),
	}
	c.sock = iosock.New(iosock.Config{})
	return c
}

func TestSubscribeThenServerImageTransitionsStreamToImaged(t *testing.T) {
	c := newTestChannel()

	var got recordcache.Update
	c.OnData = func(u recordcache.Update) { got = u }

	id, err := c.Subscribe("IDN_RDF", "IBM")
	require.NoError(t, err)
	require.Equal(t, Opened, c.streams[id].state)

	tag := c.streams[id].tag
	frame := c.codec.EncodeMessage(
		wire.Header{Tag: tag, DT: wire.DataImage, MT: wire.MsgImage, Protocol: c.codec.Protocol},
		[]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 185.32}},
	)

	c.dispatch(frame)

	require.Equal(t, Imaged, c.streams[id].state)
	require.Equal(t, id, got.StreamID)
	require.Len(t, got.Fields, 1)
	require.Equal(t, 185.32, got.Fields[0].F64)

	rec, ok := c.cache.Lookup(id)
	require.True(t, ok)
	f, ok := rec.Field(25)
	require.True(t, ok)
	require.Equal(t, 185.32, f.F64)
}

func TestSubscribeThenServerUpdateTransitionsStreamToUpdated(t *testing.T) {
	c := newTestChannel()
	id, err := c.Subscribe("IDN_RDF", "IBM")
	require.NoError(t, err)
	tag := c.streams[id].tag

	img := c.codec.EncodeMessage(wire.Header{Tag: tag, DT: wire.DataImage, MT: wire.MsgImage, Protocol: c.codec.Protocol},
		[]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 100}})
	c.dispatch(img)
	require.Equal(t, Imaged, c.streams[id].state)

	upd := c.codec.EncodeMessage(wire.Header{Tag: tag, DT: wire.DataUpdate, MT: wire.MsgUpdate, Protocol: c.codec.Protocol},
		[]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 101}})
	c.dispatch(upd)
	require.Equal(t, Updated, c.streams[id].state)

	rec, _ := c.cache.Lookup(id)
	f, _ := rec.Field(25)
	require.Equal(t, 101.0, f.F64)
}

func TestDispatchDiscardsUpdateBeforeImage(t *testing.T) {
	c := newTestChannel()

	var got recordcache.Update
	onDataCalls := 0
	c.OnData = func(u recordcache.Update) { got = u; onDataCalls++ }

	id, err := c.Subscribe("IDN_RDF", "IBM")
	require.NoError(t, err)
	require.Equal(t, Opened, c.streams[id].state)
	tag := c.streams[id].tag

	upd := c.codec.EncodeMessage(wire.Header{Tag: tag, DT: wire.DataUpdate, MT: wire.MsgUpdate, Protocol: c.codec.Protocol},
		[]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 101}})
	c.dispatch(upd)

	require.Equal(t, Opened, c.streams[id].state, "state must not advance on an update with no prior image")
	require.Equal(t, 0, onDataCalls, "OnData must not fire for a discarded update")
	require.Equal(t, recordcache.Update{}, got)

	rec, ok := c.cache.Lookup(id)
	require.True(t, ok)
	_, ok = rec.Field(25)
	require.False(t, ok, "a discarded update must not populate the cache")
}

func TestUnsubscribeWaitsForAckBeforeClosing(t *testing.T) {
	c := newTestChannel()
	id, err := c.Subscribe("IDN_RDF", "IBM")
	require.NoError(t, err)
	tag := c.streams[id].tag

	require.NoError(t, c.Unsubscribe(id))
	require.True(t, c.streams[id].ackRequired)
	require.Contains(t, c.streams, id)

	ack := c.codec.EncodeMessage(wire.Header{Tag: tag, DT: wire.DataStatus, MT: wire.MsgAck, Protocol: c.codec.Protocol}, nil)
	c.dispatch(ack)

	require.NotContains(t, c.streams, id)
	require.NotContains(t, c.byKey, recordcache.Key{Service: "IDN_RDF", Ticker: "IBM"})
}

func TestPublishFirstCallSendsImageSubsequentSendUpdate(t *testing.T) {
	c := newTestChannel()
	key := recordcache.Key{Service: "IDN_RDF", Ticker: "IBM"}

	require.NoError(t, c.Publish(key, []wire.Field{{ID: 22, Type: wire.TypeString, Raw: []byte("IBM")}}))
	id, ok := c.byKey[key]
	require.True(t, ok)
	require.Equal(t, Imaged, c.streams[id].state)

	require.NoError(t, c.Publish(key, []wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 99.5}}))
	rec, ok := c.cache.Lookup(id)
	require.True(t, ok)
	f, ok := rec.Field(25)
	require.True(t, ok)
	require.Equal(t, 99.5, f.F64)
}

func TestOnSocketReadReassemblesSplitFrames(t *testing.T) {
	c := newTestChannel()
	id, err := c.Subscribe("IDN_RDF", "IBM")
	require.NoError(t, err)
	tag := c.streams[id].tag

	frame := c.codec.EncodeMessage(wire.Header{Tag: tag, DT: wire.DataImage, MT: wire.MsgImage, Protocol: c.codec.Protocol},
		[]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 50}})

	count := 0
	c.OnData = func(recordcache.Update) { count++ }

	mid := len(frame) / 2
	c.onSocketRead(frame[:mid])
	require.Equal(t, 0, count)
	c.onSocketRead(frame[mid:])
	require.Equal(t, 1, count)
}

func TestDispatchIgnoresUnknownTag(t *testing.T) {
	c := newTestChannel()
	frame := c.codec.EncodeMessage(wire.Header{Tag: 999, DT: wire.DataImage, MT: wire.MsgImage, Protocol: c.codec.Protocol}, nil)

	called := false
	c.OnData = func(recordcache.Update) { called = true }
	c.dispatch(frame)
	require.False(t, called)
}

func TestSetSchemaInvokesOnSchema(t *testing.T) {
	c := newTestChannel()
	doc := []byte(`<schema><field fid="25" type="3" name="BID"/></schema>`)

	var got []schema.Field
	c.OnSchema = func(fields []schema.Field) { got = fields }

	require.NoError(t, c.SetSchema(doc))
	require.Len(t, got, 1)
	require.Equal(t, "BID", got[0].Name)
	require.Len(t, c.GetSchema(), 1)
}
