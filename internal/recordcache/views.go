// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recordcache

import (
	"fmt"

	"github.com/gatea-dev/rtedge/internal/wire"
)

// ChainLinkField is the field name prefix a Chain follows to enumerate
// its linked records (e.g. "_LINK.1", "_LINK.2", ...), per
// librtEdge/CLI/src/Chain.cpp's link-walking convention.
const ChainLinkField = "_LINK"

// Chain is a thin read-only view over Cache that follows a record's
// "_LINK.n" string fields to enumerate a linked list of records (order
// book levels, a news headline list, etc). It introduces no new wire
// type: each link is just another (service, ticker) Record already in
// the Cache.
type Chain struct {
	cache   *Cache
	service string
}

// NewChain returns a Chain rooted at the Cache, resolving link tickers
// within service.
func NewChain(cache *Cache, service string) *Chain {
	return &Chain{cache: cache, service: service}
}

// Links walks from root following successive "_LINK.n" fields (n =
// 1, 2, ...) until a link is absent or points at a ticker with no
// cached Record, returning the ordered list of resolved tickers
// (root included first).
func (c *Chain) Links(root string) []string {
	out := []string{root}
	ticker := root
	for n := 1; ; n++ {
		rec, ok := c.cache.LookupKey(Key{Service: c.service, Ticker: ticker})
		if !ok {
			break
		}
		next, ok := linkField(rec, n)
		if !ok || next == "" {
			break
		}
		out = append(out, next)
		ticker = next
	}
	return out
}

func linkField(rec *Record, n int) (string, bool) {
	name := fmt.Sprintf("%s.%d", ChainLinkField, n)
	for _, f := range rec.Snapshot() {
		if f.Name == name && f.Type == wire.TypeString {
			return string(f.Raw), true
		}
	}
	return "", false
}

// Vector decodes a TypeVectorDouble field into a plain []float64, the
// thin view librtEdge/CLI/src/Vector.cpp provides over the same wire
// data rather than a distinct wire type.
func Vector(rec *Record, fieldID int) ([]float64, bool) {
	f, ok := rec.Field(fieldID)
	if !ok || f.Type != wire.TypeVectorDouble {
		return nil, false
	}
	return append([]float64(nil), f.Vector...), true
}

// ByteStream returns the raw payload of a TypeBytestream field, the
// view librtEdge/CLI/src/ByteStream.cpp provides for chunked binary
// attachments (e.g. a PDF delivered over the wire in field fragments).
func ByteStream(rec *Record, fieldID int) ([]byte, bool) {
	f, ok := rec.Field(fieldID)
	if !ok || f.Type != wire.TypeBytestream {
		return nil, false
	}
	return append([]byte(nil), f.Raw...), true
}
