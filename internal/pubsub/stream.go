// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "github.com/gatea-dev/rtedge/internal/recordcache"

// StreamState is a subscription's protocol state (spec.md §4.11):
// Idle -> Opened -> Imaged -> {Updated*} -> Closed. A status message
// carrying "stale" or "dead" is delivered to the application but does
// not itself transition the stream out of Imaged/Updated.
type StreamState int

const (
	Idle StreamState = iota
	Opened
	Imaged
	Updated
	Closed
)

func (s StreamState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Opened:
		return "Opened"
	case Imaged:
		return "Imaged"
	case Updated:
		return "Updated"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// stream is one Channel-local subscription.
type stream struct {
	id          int
	key         recordcache.Key
	tag         uint32 // OPN request tag; the remote end echoes it on every Image/Update/Status for this stream (spec.md's "tag | per-request correlator")
	state       StreamState
	ackRequired bool // set when Unsubscribe is waiting on a close ACK
}
