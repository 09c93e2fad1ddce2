// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatea-dev/rtedge/internal/lvc"
	"github.com/gatea-dev/rtedge/internal/schema"
	"github.com/gatea-dev/rtedge/internal/wire"
	"github.com/stretchr/testify/require"
)

func buildTestLVC(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lvc.dat")

	fields := []schema.Field{
		{ID: 22, Name: "TICKER", Type: wire.TypeString},
		{ID: 25, Name: "BID", Type: wire.TypeDouble},
	}
	hdr := lvc.EncodeHeader(lvc.Header{NumServices: 1, BinaryText: 1}, fields)

	ibm := lvc.Record{
		Service: "IDN_RDF",
		Ticker:  "IBM",
		Active:  true,
		Created: time.Unix(1700000000, 0),
		Updated: time.Unix(1700000100, 0),
		Updates: 3,
		Fields:  []wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 185.45}},
	}
	ibmSlot, err := lvc.EncodeSlot(ibm)
	require.NoError(t, err)

	msft := lvc.Record{
		Service: "IDN_RDF",
		Ticker:  "MSFT",
		Active:  true,
		Created: time.Unix(1700000000, 0),
		Updated: time.Unix(1700000200, 0),
		Updates: 1,
		Fields:  []wire.Field{{ID: 25, Type: wire.TypeDouble, F64: 402.1}},
	}
	msftSlot, err := lvc.EncodeSlot(msft)
	require.NoError(t, err)

	buf := append(hdr, ibmSlot...)
	buf = append(buf, msftSlot...)
	require.NoError(t, os.WriteFile(path, buf, 0644))
	return path
}

func captureStdout(t *testing.T, fn func() int) (string, int) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	code := fn()
	w.Close()
	os.Stdout = orig

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String(), code
}

func TestRunVersionPrintsAndExitsZero(t *testing.T) {
	out, code := captureStdout(t, func() int { return run([]string{"--version"}) })
	require.Equal(t, 0, code)
	require.Contains(t, out, version)
}

func TestRunConfigPrintsDefaults(t *testing.T) {
	out, code := captureStdout(t, func() int { return run([]string{"--config"}) })
	require.Equal(t, 0, code)
	require.Contains(t, out, "\"eventsCap\"")
}

func TestRunMissingPathIsUsageError(t *testing.T) {
	code := run([]string{})
	require.Equal(t, 1, code)
}

func TestRunBadFieldIDIsUsageError(t *testing.T) {
	path := buildTestLVC(t)
	code := run([]string{"-db", path, "-fid", "nope"})
	require.Equal(t, 1, code)
}

func TestRunBadPathIsIOError(t *testing.T) {
	code := run([]string{"-db", filepath.Join(t.TempDir(), "missing.dat")})
	require.Equal(t, 2, code)
}

func TestRunDumpsAllRecords(t *testing.T) {
	path := buildTestLVC(t)
	out, code := captureStdout(t, func() int { return run([]string{"-db", path}) })
	require.Equal(t, 0, code)

	var recs []dumpRecord
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var rec dumpRecord
		require.NoError(t, dec.Decode(&rec))
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
}

func TestRunFiltersByServiceAndTicker(t *testing.T) {
	path := buildTestLVC(t)
	out, code := captureStdout(t, func() int { return run([]string{"-db", path, "-s", "IDN_RDF", "-t", "MSFT"}) })
	require.Equal(t, 0, code)

	var rec dumpRecord
	dec := json.NewDecoder(bytes.NewBufferString(out))
	require.True(t, dec.More())
	require.NoError(t, dec.Decode(&rec))
	require.Equal(t, "MSFT", rec.Ticker)
	require.False(t, dec.More())
}

func TestRunFiltersByFieldID(t *testing.T) {
	path := buildTestLVC(t)
	out, code := captureStdout(t, func() int { return run([]string{"-db", path, "-fid", "999"}) })
	require.Equal(t, 0, code)

	var recs []dumpRecord
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var rec dumpRecord
		require.NoError(t, dec.Decode(&rec))
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	for _, rec := range recs {
		require.Empty(t, rec.Fields)
	}
}

func TestMatchesRecord(t *testing.T) {
	rec := lvc.Record{Service: "svc", Ticker: "TKR"}
	require.True(t, matchesRecord(rec, "", nil))
	require.True(t, matchesRecord(rec, "svc", nil))
	require.False(t, matchesRecord(rec, "other", nil))
	require.True(t, matchesRecord(rec, "svc", map[string]bool{"TKR": true}))
	require.False(t, matchesRecord(rec, "svc", map[string]bool{"OTHER": true}))
}

func TestParseCSV(t *testing.T) {
	require.Nil(t, parseCSV(""))
	require.Nil(t, parseCSV("*"))
	require.Equal(t, map[string]bool{"A": true, "B": true}, parseCSV("A,B"))
}
