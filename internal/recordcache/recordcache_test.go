// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recordcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatea-dev/rtedge/internal/wire"
)

func TestRecordCacheMergesAndTracksPending(t *testing.T) {
	r := newRecord()
	r.Cache([]wire.Field{
		{ID: 22, Type: wire.TypeString, Raw: []byte("IBM")},
		{ID: 25, Type: wire.TypeDouble, F64: 185.32},
	})

	upds := r.GetUpds(nil)
	require.Len(t, upds, 2)

	// A second GetUpds with nothing new pending returns empty.
	require.Empty(t, r.GetUpds(nil))

	r.Cache([]wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 185.45}})
	upds = r.GetUpds(nil)
	require.Len(t, upds, 1)
	require.Equal(t, 185.45, upds[0].F64)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
}

func TestRecordCachePendingDedupesAcrossCacheCalls(t *testing.T) {
	r := newRecord()
	r.Cache([]wire.Field{{ID: 1, Type: wire.TypeInt32, I32: 1}})
	r.Cache([]wire.Field{
		{ID: 1, Type: wire.TypeInt32, I32: 2}, // already pending, should not duplicate
		{ID: 2, Type: wire.TypeInt32, I32: 3},
	})

	upds := r.GetUpds(nil)
	require.Len(t, upds, 2)
}

func TestCacheOpenIsIdempotentByKey(t *testing.T) {
	c := New(0)
	key := Key{Service: "IDN_RDF", Ticker: "IBM"}

	id1, rec1 := c.Open(key)
	id2, rec2 := c.Open(key)
	require.Equal(t, id1, id2)
	require.Same(t, rec1, rec2)

	rec, ok := c.LookupKey(key)
	require.True(t, ok)
	require.Same(t, rec1, rec)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	k1 := Key{Service: "S", Ticker: "A"}
	k2 := Key{Service: "S", Ticker: "B"}
	k3 := Key{Service: "S", Ticker: "C"}

	c.Open(k1)
	c.Open(k2)
	c.Open(k3) // evicts k1 (least recently touched)

	_, ok := c.LookupKey(k1)
	require.False(t, ok)
	_, ok = c.LookupKey(k2)
	require.True(t, ok)
	_, ok = c.LookupKey(k3)
	require.True(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestEventsConflatedCoalesces(t *testing.T) {
	e := NewEvents(0)
	ok := e.Push(Update{StreamID: 1, Kind: Conflated, Fields: []wire.Field{{ID: 1, Type: wire.TypeInt32, I32: 1}}})
	require.True(t, ok)
	ok = e.Push(Update{StreamID: 1, Kind: Conflated, Fields: []wire.Field{{ID: 1, Type: wire.TypeInt32, I32: 2}}})
	require.True(t, ok)

	u, ok := e.GetOneUpd()
	require.True(t, ok)
	require.Len(t, u.Fields, 1)
	require.Equal(t, int32(2), u.Fields[0].I32)

	_, ok = e.GetOneUpd()
	require.False(t, ok)
}

func TestEventsUnconflatedAlwaysSeparate(t *testing.T) {
	e := NewEvents(0)
	e.Push(Update{StreamID: 1, Kind: Unconflated})
	e.Push(Update{StreamID: 1, Kind: Unconflated})

	_, ok := e.GetOneUpd()
	require.True(t, ok)
	_, ok = e.GetOneUpd()
	require.True(t, ok)
	_, ok = e.GetOneUpd()
	require.False(t, ok)
}

func TestEventsWaitTimesOut(t *testing.T) {
	e := NewEvents(0)
	start := time.Now()
	_, ok := e.Wait(50 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestEventsWaitWakesOnPush(t *testing.T) {
	e := NewEvents(0)
	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Push(Update{StreamID: 7, Kind: Unconflated})
	}()

	u, ok := e.Wait(time.Second)
	require.True(t, ok)
	require.Equal(t, 7, u.StreamID)
}

func TestEventsFullReturnsFalse(t *testing.T) {
	e := NewEvents(1)
	require.True(t, e.Push(Update{StreamID: 1, Kind: Unconflated}))
	require.False(t, e.Push(Update{StreamID: 2, Kind: Unconflated}))
}
