// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recordcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatea-dev/rtedge/internal/wire"
)

func TestChainWalksLinkFields(t *testing.T) {
	c := New(0)
	_, top := c.Open(Key{Service: "BOOK", Ticker: "IBM"})
	top.Cache([]wire.Field{{ID: 900, Name: "_LINK.1", Type: wire.TypeString, Raw: []byte("IBM.L2")}})

	_, mid := c.Open(Key{Service: "BOOK", Ticker: "IBM.L2"})
	mid.Cache([]wire.Field{{ID: 900, Name: "_LINK.1", Type: wire.TypeString, Raw: []byte("IBM.L3")}})

	chain := NewChain(c, "BOOK")
	links := chain.Links("IBM")
	require.Equal(t, []string{"IBM", "IBM.L2", "IBM.L3"}, links)
}

func TestVectorAndByteStreamViews(t *testing.T) {
	r := newRecord()
	r.Cache([]wire.Field{
		{ID: 10, Type: wire.TypeVectorDouble, Vector: []float64{1, 2, 3}},
		{ID: 11, Type: wire.TypeBytestream, Raw: []byte{0xDE, 0xAD}},
	})

	v, ok := Vector(r, 10)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3}, v)

	b, ok := ByteStream(r, 11)
	require.True(t, ok)
	require.Equal(t, []byte{0xDE, 0xAD}, b)

	_, ok = Vector(r, 11)
	require.False(t, ok)
}
