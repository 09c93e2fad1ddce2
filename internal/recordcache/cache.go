// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package recordcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache indexes Records by both a numeric stream id and (service,
// ticker) key, bounding the number of live streams via an LRU so a
// long-running subscriber doesn't grow memory unbounded across stream
// churn (spec.md §4.6 names per-stream conflation but leaves the total
// stream-table size to the implementation).
type Cache struct {
	mu      sync.Mutex
	byKey   map[Key]int
	byID    map[int]*Record
	keyByID map[int]Key
	nextID  int

	lru *lru.Cache[int, struct{}]
}

// New returns a Cache bounding itself to maxStreams live streams; 0
// selects a generous default.
func New(maxStreams int) *Cache {
	if maxStreams <= 0 {
		maxStreams = 65536
	}
	c := &Cache{
		byKey:   make(map[Key]int),
		byID:    make(map[int]*Record),
		keyByID: make(map[int]Key),
	}
	l, _ := lru.NewWithEvict[int, struct{}](maxStreams, func(id int, _ struct{}) {
		c.evict(id)
	})
	c.lru = l
	return c
}

// evict drops a stream's Record when the LRU pushes it out. Called
// synchronously from within lru.Add/lru.Remove, both of which only run
// while the caller already holds c.mu, so this must not re-lock it.
func (c *Cache) evict(id int) {
	if key, ok := c.keyByID[id]; ok {
		delete(c.byKey, key)
		delete(c.keyByID, id)
		delete(c.byID, id)
	}
}

// Open returns the Record for key, creating it (and assigning a new
// stream id) if this is the first reference.
func (c *Cache) Open(key Key) (id int, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byKey[key]; ok {
		c.lru.Get(id) // bump recency
		return id, c.byID[id]
	}

	c.nextID++
	id = c.nextID
	rec = newRecord()
	c.byKey[key] = id
	c.byID[id] = rec
	c.keyByID[id] = key
	c.lru.Add(id, struct{}{})
	return id, rec
}

// Lookup finds an existing Record by stream id.
func (c *Cache) Lookup(id int) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[id]
	if ok {
		c.lru.Get(id)
	}
	return r, ok
}

// LookupKey finds an existing Record by (service, ticker).
func (c *Cache) LookupKey(key Key) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	c.lru.Get(id)
	return c.byID[id], true
}

// Close removes a stream's Record entirely (e.g. on CLS message).
func (c *Cache) Close(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
	c.evict(id)
}

// Len returns the number of live streams.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
