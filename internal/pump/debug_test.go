// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pump

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestStatsReflectsLoopActivity(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	p.AddIdle(func() {})
	time.Sleep(250 * time.Millisecond)

	stats := p.Stats()
	require.Greater(t, stats.LoopIterations, uint64(0))
	require.Greater(t, stats.IdleInvocations, uint64(0))
}

func TestDebugVarsServesStatsAsJSON(t *testing.T) {
	p := New(prometheus.NewRegistry())
	go p.Run()
	defer p.Stop()

	time.Sleep(150 * time.Millisecond)

	srv := httptest.NewServer(p.NewDebugRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Greater(t, stats.LoopIterations, uint64(0))
}
