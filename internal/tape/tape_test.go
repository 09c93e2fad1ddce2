// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tape

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAppendAndDecodeHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tape.dat")

	w, err := Create(path, time.Second, 4)
	require.NoError(t, err)

	seq1, err := w.Append(7, "IDN_RDF.IBM", time.Now(), 1, false, []byte("payload-one"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq1)

	seq2, err := w.Append(7, "IDN_RDF.IBM", time.Now(), 1, false, []byte("payload-two"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq2)

	seq3, err := w.Append(9, "IDN_RDF.MSFT", time.Now(), 2, true, []byte("other-stream"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq3)

	require.NoError(t, w.Close())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)

	hdr, streamsEnd, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(3), hdr.TotalMessages)
	require.Len(t, hdr.Streams, 4)

	var seven, nine StreamDesc
	for _, sd := range hdr.Streams {
		if sd.DBIdx == 7 && sd.Last > 0 {
			seven = sd
		}
		if sd.DBIdx == 9 && sd.Last > 0 {
			nine = sd
		}
	}
	require.Equal(t, uint64(2), seven.Last)
	require.Equal(t, uint64(1), nine.Last)
	require.Equal(t, "IDN_RDF.IBM", seven.Name)
	require.Equal(t, "IDN_RDF.MSFT", nine.Name)
	require.Greater(t, streamsEnd, headerFixedLen)

	dataOff := DataOffset(hdr)
	firstHdr, err := DecodeMsgHeader(buf[dataOff:])
	require.NoError(t, err)
	require.Equal(t, uint32(7), firstHdr.DBIdx)
	require.Equal(t, uint64(1), firstHdr.Last)
	payload := buf[int(dataOff)+MsgHeaderLen : int(dataOff)+int(firstHdr.Length)]
	require.Equal(t, "payload-one", string(payload))
}

func TestAppendFailsWhenStreamTableFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tape.dat")

	w, err := Create(path, time.Second, 1)
	require.NoError(t, err)

	_, err = w.Append(1, "svc.A", time.Now(), 1, false, []byte("a"))
	require.NoError(t, err)

	_, err = w.Append(2, "svc.B", time.Now(), 1, false, []byte("b"))
	require.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tapePath := filepath.Join(dir, "tape.dat")
	ckptPath := filepath.Join(dir, "tape.ckpt")

	w, err := Create(tapePath, time.Second, 4)
	require.NoError(t, err)
	_, err = w.Append(7, "svc.X", time.Now(), 1, false, []byte("x"))
	require.NoError(t, err)
	_, err = w.Append(9, "svc.Y", time.Now(), 1, false, []byte("y"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	buf, err := os.ReadFile(tapePath)
	require.NoError(t, err)
	hdr, _, err := DecodeHeader(buf)
	require.NoError(t, err)

	require.NoError(t, WriteCheckpoint(ckptPath, hdr))
	streams, err := ReadCheckpoint(ckptPath)
	require.NoError(t, err)
	require.Len(t, streams, 2)
}

func TestBadSignatureRejected(t *testing.T) {
	buf := make([]byte, headerFixedLen)
	copy(buf, "nope")
	_, _, err := DecodeHeader(buf)
	require.ErrorIs(t, err, ErrBadSignature)
}
