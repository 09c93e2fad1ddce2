// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pump

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Stats is a point-in-time snapshot of the loop's own counters,
// exposed over the debug HTTP surface below.
type Stats struct {
	LoopIterations  uint64 `json:"loopIterations"`
	IdleInvocations uint64 `json:"idleInvocations"`
	Timers          int    `json:"timers"`
}

// Stats returns a point-in-time snapshot of the loop's counters.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		LoopIterations:  p.iterations.Load(),
		IdleInvocations: p.idleCalls.Load(),
		Timers:          len(p.timers),
	}
}

// NewDebugRouter returns a tiny /debug/vars-style introspection router
// over the Pump's own counters, using the same gorilla/mux routing
// shape the teacher uses for its own HTTP surface
// (internal/routerConfig/routes.go). Callers that want RecordCache or
// LVC introspection alongside it can mount additional routes on the
// returned router before serving it.
func (p *Pump) NewDebugRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/debug/vars", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.Stats())
	}).Methods(http.MethodGet)
	return r
}
