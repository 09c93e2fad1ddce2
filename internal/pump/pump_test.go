// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pump

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOneShotTimerFiresOnce(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	var n int32
	p.AddTimer(150*time.Millisecond, false, func() { atomic.AddInt32(&n, 1) })

	time.Sleep(600 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&n))
}

func TestRepeatingTimerFiresMultipleTimes(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	var n int32
	p.AddTimer(100*time.Millisecond, true, func() { atomic.AddInt32(&n, 1) })

	time.Sleep(650 * time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&n), int32(3))
}

func TestRemoveTimerStopsFurtherFiring(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	var n int32
	id := p.AddTimer(100*time.Millisecond, true, func() { atomic.AddInt32(&n, 1) })
	time.Sleep(250 * time.Millisecond)
	p.RemoveTimer(id)
	time.Sleep(150 * time.Millisecond)
	after := atomic.LoadInt32(&n)

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&n))
}

func TestIdleCallbackInvokedEveryTick(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	var n int32
	p.AddIdle(func() { atomic.AddInt32(&n, 1) })

	time.Sleep(550 * time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&n), int32(3))
}
