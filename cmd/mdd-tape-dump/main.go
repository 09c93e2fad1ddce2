// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mdd-tape-dump is a diagnostic test harness for internal/tape
// journals: it decodes a tape file's messages and prints them as
// newline-delimited JSON, optionally filtered by service, ticker, and
// field id, and optionally served over HTTP instead of stdout.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gatea-dev/rtedge/internal/config"
	"github.com/gatea-dev/rtedge/internal/tape"
	"github.com/gatea-dev/rtedge/internal/tapereader"
	"github.com/gatea-dev/rtedge/internal/wire"
	"github.com/gatea-dev/rtedge/pkg/log"
	"github.com/gorilla/mux"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("mdd-tape-dump", flag.ContinueOnError)
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
	fs.StringVar(&path, "db", "", "path to tape file")
	fs.StringVar(&path, "f", "", "path to tape file (alias of -db)")
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
		fmt.Fprintln(os.Stderr, "mdd-tape-dump: -db (or -f) <path> is required")
		return 1
	}

	tickerSet := parseCSV(tickers)
	fidSet, err := parseFieldIDs(fids)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
		return 1
	}

	r, err := tapereader.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
		return 2
	}
	defer r.Close()

	names := streamNames(r.Streams())

	if httpAddr != "" {
		return serveHTTP(httpAddr, r, names, service, tickerSet, fidSet)
	}

	enc := json.NewEncoder(os.Stdout)
	for {
		msg, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
			return 2
		}
		if !matchesKey(names[msg.Header.DBIdx], service, tickerSet) {
			continue
		}
		if err := enc.Encode(toDumpRecord(msg, names[msg.Header.DBIdx], fidSet)); err != nil {
			fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
			return 2
		}
	}
	return 0
}

func printDefaults() int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(config.Defaults()); err != nil {
		fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
		return 2
	}
	return 0
}

// streamNames maps each tape dbIdx to its "service.ticker" descriptor
// name, for filtering and display (tape.StreamDesc.Name).
func streamNames(streams []tape.StreamDesc) map[uint32]string {
	out := make(map[uint32]string, len(streams))
	for _, sd := range streams {
		if sd.Last > 0 {
			out[sd.DBIdx] = sd.Name
		}
	}
	return out
}

// matchesKey checks a "service.ticker" stream name against the -s and
// -t filters; an empty service filter matches any service, and a "*"
// ticker filter (the default) matches any ticker.
func matchesKey(name, service string, tickerSet map[string]bool) bool {
	svc, tkr, _ := strings.Cut(name, ".")
	if service != "" && svc != service {
		return false
	}
	if tickerSet == nil {
		return true
	}
	return tickerSet[tkr]
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

// dumpRecord is the JSON shape printed per decoded tape message.
type dumpRecord struct {
	Seq    uint64      `json:"seq"`
	Stream string      `json:"stream"`
	Time   time.Time   `json:"time"`
	NUpd   uint32      `json:"nUpd"`
	BLast4 bool        `json:"bLast4,omitempty"`
	Fields []fieldJSON `json:"fields,omitempty"`
}

type fieldJSON struct {
	ID    uint32 `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func toDumpRecord(msg tapereader.Message, stream string, fidSet map[int]bool) dumpRecord {
	rec := dumpRecord{
		Seq:    msg.Header.Last,
		Stream: stream,
		Time:   msg.Time,
		NUpd:   msg.Header.NUpd,
		BLast4: msg.Header.BLast4,
	}
	for _, f := range msg.Fields {
		if fidSet != nil && !fidSet[int(f.ID)] {
			continue
		}
		rec.Fields = append(rec.Fields, toFieldJSON(f))
	}
	return rec
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

// serveHTTP exposes the tape's stream table and filtered message dump
// over a tiny gorilla/mux router, the same routing style the teacher
// uses for its own HTTP surface.
func serveHTTP(addr string, r *tapereader.Reader, names map[uint32]string, service string, tickerSet map[string]bool, fidSet map[int]bool) int {
	router := mux.NewRouter()

	router.HandleFunc("/streams", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Streams()); err != nil {
			log.Errorf("mdd-tape-dump: encode /streams: %s", err.Error())
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/messages", func(w http.ResponseWriter, req *http.Request) {
		r.Rewind()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		for {
			msg, err := r.Read()
			if err != nil {
				break
			}
			if !matchesKey(names[msg.Header.DBIdx], service, tickerSet) {
				continue
			}
			if err := enc.Encode(toDumpRecord(msg, names[msg.Header.DBIdx], fidSet)); err != nil {
				log.Errorf("mdd-tape-dump: encode message: %s", err.Error())
				return
			}
		}
	}).Methods(http.MethodGet)

	log.Infof("mdd-tape-dump: serving on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		fmt.Fprintln(os.Stderr, "mdd-tape-dump:", err)
		return 2
	}
	return 0
}
