// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema implements the process-wide field-id/name dictionary
// (spec.md §4.5): a <schema> XML document of <field fid= name= type= …/>
// entries, mutated by bulk-replace under a lock and looked up lock-free
// afterward via an atomic pointer swap, the same discipline the teacher
// uses for its in-memory cluster/metric config tree (internal/memorystore
// level.go: build a new tree, then swap the root pointer in one store).
package schema

import (
	"encoding/xml"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gatea-dev/rtedge/internal/wire"
)

// Field describes one dictionary entry.
type Field struct {
	ID   int
	Name string
	Type wire.Type
}

type xmlSchema struct {
	XMLName xml.Name    `xml:"schema"`
	Fields  []xmlField  `xml:"field"`
}

type xmlField struct {
	FID  int       `xml:"fid,attr"`
	Name string    `xml:"name,attr"`
	Type wire.Type `xml:"type,attr"`
}

// dict is the immutable snapshot swapped in on each bulk-replace.
type dict struct {
	byID   map[int]Field
	byName map[string]Field
}

// Dictionary is the process-wide field-id ↔ name ↔ type table. Reads are
// lock-free against the current snapshot; writes (Replace) take the
// mutation lock, build a new snapshot, and atomically swap the root
// pointer so concurrent readers never observe a half-built table.
type Dictionary struct {
	mu   sync.Mutex // serializes Replace calls only
	root atomic.Pointer[dict]

	// byNameCache mirrors byName but through an LRU so very large
	// dictionaries (thousands of fields, repeatedly looked up by the hot
	// decode path) keep working set bounded; the id->field path is a
	// plain map since field ids are dense small integers.
	byNameCache *lru.Cache[string, Field]
}

// New returns an empty Dictionary. cacheSize bounds the by-name LRU; 0
// selects a sensible default.
func New(cacheSize int) *Dictionary {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	c, _ := lru.New[string, Field](cacheSize)
	d := &Dictionary{byNameCache: c}
	d.root.Store(&dict{byID: map[int]Field{}, byName: map[string]Field{}})
	return d
}

// ParseXML decodes a <schema> document into a field slice without
// mutating any Dictionary, so callers can validate before Replace.
func ParseXML(doc []byte) ([]Field, error) {
	var x xmlSchema
	if err := xml.Unmarshal(doc, &x); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	out := make([]Field, 0, len(x.Fields))
	for _, f := range x.Fields {
		out = append(out, Field{ID: f.FID, Name: f.Name, Type: f.Type})
	}
	return out, nil
}

// Replace performs a bulk-replace of the dictionary (spec.md §4.5):
// builds a new snapshot off to the side, then swaps it in atomically.
// Existing readers holding the old *dict continue to see it consistently.
func (d *Dictionary) Replace(fields []Field) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nd := &dict{
		byID:   make(map[int]Field, len(fields)),
		byName: make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		nd.byID[f.ID] = f
		nd.byName[f.Name] = f
	}
	d.root.Store(nd)
	d.byNameCache.Purge()
}

// ReplaceXML parses doc and replaces the dictionary in one step.
func (d *Dictionary) ReplaceXML(doc []byte) error {
	fields, err := ParseXML(doc)
	if err != nil {
		return err
	}
	d.Replace(fields)
	return nil
}

// ByID looks up a field by id. Lock-free: reads the current snapshot.
func (d *Dictionary) ByID(id int) (Field, bool) {
	f, ok := d.root.Load().byID[id]
	return f, ok
}

// ByName looks up a field by name (case-sensitive per spec.md §4.5),
// consulting the LRU before falling back to the snapshot map.
func (d *Dictionary) ByName(name string) (Field, bool) {
	if f, ok := d.byNameCache.Get(name); ok {
		return f, ok
	}
	f, ok := d.root.Load().byName[name]
	if ok {
		d.byNameCache.Add(name, f)
	}
	return f, ok
}

// All returns every field in the current snapshot, in no particular order.
func (d *Dictionary) All() []Field {
	snap := d.root.Load()
	out := make([]Field, 0, len(snap.byID))
	for _, f := range snap.byID {
		out = append(out, f)
	}
	return out
}

// EncodeXML renders the dictionary back into a <schema> document that
// ParseXML accepts.
func (d *Dictionary) EncodeXML() ([]byte, error) {
	snap := d.root.Load()
	x := xmlSchema{Fields: make([]xmlField, 0, len(snap.byID))}
	for _, f := range snap.byID {
		x.Fields = append(x.Fields, xmlField{FID: f.ID, Name: f.Name, Type: f.Type})
	}
	return xml.Marshal(x)
}
