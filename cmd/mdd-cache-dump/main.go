// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mdd-cache-dump is a diagnostic test harness for internal/lvc
// last-value-cache files: it snapshots cached records and prints them
// as newline-delimited JSON, optionally filtered by service, ticker,
// and field id, and optionally served over HTTP instead of stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gatea-dev/rtedge/internal/config"
	"github.com/gatea-dev/rtedge/internal/lvc"
	"github.com/gatea-dev/rtedge/internal/wire"
	"github.com/gatea-dev/rtedge/pkg/log"
	"github.com/gorilla/mux"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mdd-cache-dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		showVersion bool
		showConfig  bool
		path        string
		service     string
		tickers     string
		fids        string
		httpAddr    string
	)
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&showConfig, "config", false, "print default configuration and exit")
	fs.StringVar(&path, "db", "", "path to LVC file")
	fs.StringVar(&path, "f", "", "path to LVC file (alias of -db)")
	fs.StringVar(&service, "s", "", "filter by service")
	fs.StringVar(&tickers, "t", "*", `tickers CSV or "*"`)
	fs.StringVar(&fids, "fid", "", "filter by field id CSV")
	fs.StringVar(&httpAddr, "http", "", "serve the dump over HTTP instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if showVersion {
		fmt.Println(version)
		return 0
	}
	if showConfig {
		return printDefaults()
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump: -db (or -f) <path> is required")
		return 1
	}

	tickerSet := parseCSV(tickers)
	fidSet, err := parseFieldIDs(fids)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
		return 1
	}

	store, err := lvc.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
		return 2
	}
	defer store.Close()

	if len(fidSet) > 0 {
		ids := make([]int, 0, len(fidSet))
		for id := range fidSet {
			ids = append(ids, id)
		}
		store.SetFilter(ids)
	}

	if httpAddr != "" {
		return serveHTTP(httpAddr, store, service, tickerSet)
	}

	recs, err := snapshot(store, service, tickerSet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
		return 2
	}
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range recs {
		if err := enc.Encode(toDumpRecord(rec)); err != nil {
			fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
			return 2
		}
	}
	return 0
}

func printDefaults() int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(config.Defaults()); err != nil {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
		return 2
	}
	return 0
}

func snapshot(store *lvc.Store, service string, tickerSet map[string]bool) ([]lvc.Record, error) {
	all, err := store.SnapAll()
	if err != nil {
		return nil, err
	}
	out := make([]lvc.Record, 0, len(all))
	for _, rec := range all {
		if !matchesRecord(rec, service, tickerSet) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// matchesRecord checks a record's service/ticker against the -s and -t
// filters; an empty service filter matches any service, and a "*"
// ticker filter (the default, represented as a nil set) matches any
// ticker.
func matchesRecord(rec lvc.Record, service string, tickerSet map[string]bool) bool {
	if service != "" && rec.Service != service {
		return false
	}
	if tickerSet == nil {
		return true
	}
	return tickerSet[rec.Ticker]
}

// parseCSV splits a CSV ticker filter into a lookup set. A bare "*"
// (or empty string) disables filtering by returning nil.
func parseCSV(csv string) map[string]bool {
	if csv == "" || csv == "*" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}

func parseFieldIDs(csv string) (map[int]bool, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make(map[int]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid -fid %q: %w", p, err)
		}
		out[id] = true
	}
	return out, nil
}

type dumpRecord struct {
	Service string      `json:"service"`
	Ticker  string      `json:"ticker"`
	Active  bool        `json:"active"`
	Updates uint32      `json:"updates"`
	Created string      `json:"created"`
	Updated string      `json:"updated"`
	Fields  []fieldJSON `json:"fields,omitempty"`
}

type fieldJSON struct {
	ID    uint32 `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func toDumpRecord(rec lvc.Record) dumpRecord {
	out := dumpRecord{
		Service: rec.Service,
		Ticker:  rec.Ticker,
		Active:  rec.Active,
		Updates: rec.Updates,
		Created: rec.Created.Format("2006-01-02T15:04:05.000Z07:00"),
		Updated: rec.Updated.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	for _, f := range rec.Fields {
		out.Fields = append(out.Fields, toFieldJSON(f))
	}
	return out
}

func toFieldJSON(f wire.Field) fieldJSON {
	fj := fieldJSON{ID: f.ID}
	switch f.Type {
	case wire.TypeString, wire.TypeBytestream:
		fj.Type, fj.Value = "string", f.String()
	case wire.TypeInt8:
		fj.Type, fj.Value = "int8", f.I8
	case wire.TypeInt16:
		fj.Type, fj.Value = "int16", f.I16
	case wire.TypeInt32:
		fj.Type, fj.Value = "int32", f.I32
	case wire.TypeInt64:
		fj.Type, fj.Value = "int64", f.I64
	case wire.TypeUint32:
		fj.Type, fj.Value = "uint32", f.U32
	case wire.TypeUint64:
		fj.Type, fj.Value = "uint64", f.U64
	case wire.TypeFloat:
		fj.Type, fj.Value = "float", f.F32
	case wire.TypeDouble:
		fj.Type, fj.Value = "double", f.F64
	case wire.TypeReal:
		fj.Type, fj.Value = "real", f.Real.Float64()
	case wire.TypeVectorDouble:
		fj.Type, fj.Value = "vector", f.Vector
	default:
		fj.Type, fj.Value = "unknown", nil
	}
	return fj
}

// serveHTTP exposes a live cache snapshot over a tiny gorilla/mux
// router, the same routing style the teacher uses for its own HTTP
// surface.
func serveHTTP(addr string, store *lvc.Store, service string, tickerSet map[string]bool) int {
	router := mux.NewRouter()

	router.HandleFunc("/records", func(w http.ResponseWriter, req *http.Request) {
		recs, err := snapshot(store, service, tickerSet)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		enc := json.NewEncoder(w)
		for _, rec := range recs {
			if err := enc.Encode(toDumpRecord(rec)); err != nil {
				log.Errorf("mdd-cache-dump: encode /records: %s", err.Error())
				return
			}
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/records/{service}/{ticker}", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		rec, ok, err := store.Snap(vars["service"], vars["ticker"])
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewEncoder(w).Encode(toDumpRecord(rec)); err != nil {
			log.Errorf("mdd-cache-dump: encode /records/{service}/{ticker}: %s", err.Error())
		}
	}).Methods(http.MethodGet)

	log.Infof("mdd-cache-dump: serving on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		fmt.Fprintln(os.Stderr, "mdd-cache-dump:", err)
		return 2
	}
	return 0
}
