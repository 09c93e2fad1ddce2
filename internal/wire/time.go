// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "time"

// tickResolution is the header time field's resolution: 100 microseconds.
const tickResolution = 100 * time.Microsecond

// EncodeHeaderTime converts a wall-clock time into the header's "time"
// field: 100-microsecond ticks since local midnight on the sender's clock.
func EncodeHeaderTime(t time.Time) uint32 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return uint32(t.Sub(midnight) / tickResolution)
}

// DecodeHeaderTime combines the header's "time" field with today's local
// midnight (in loc) and subtracts 12 hours if the resulting wall clock
// exceeds now by more than 12 hours, per spec.md §4.1 — this handles a
// late-evening sender message crossing the midnight boundary before it
// reaches the receiver.
func DecodeHeaderTime(ticks uint32, now time.Time, loc *time.Location) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	t := midnight.Add(time.Duration(ticks) * tickResolution)
	if t.Sub(now) > 12*time.Hour {
		t = t.Add(-12 * time.Hour)
	}
	return t
}
