// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mappedstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenReadWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lvc.dat")

	w, err := Open(path, ReadWrite, 4096)
	require.NoError(t, err)
	copy(w.Bytes(), []byte("006 LVC-BINARY"))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := Open(path, ReadOnly, 0)
	require.NoError(t, err)
	defer r.Close()

	sl, err := r.Slice(0, 14)
	require.NoError(t, err)
	require.Equal(t, "006 LVC-BINARY", string(sl))
}

func TestSliceOutOfRangeErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.dat")
	s, err := Open(path, ReadWrite, 16)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Slice(10, 100)
	require.Error(t, err)
}

func TestLockTimeoutReturnsWhenHeldExclusively(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.dat")

	a, err := Open(path, ReadWrite, 16)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Lock(true))
	defer a.Unlock()

	f2, err := os.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f2.Close()
	b := &Store{f: f2, data: a.data[:0:0]}

	start := time.Now()
	err = b.LockTimeout(true, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
