// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripBothPackModes(t *testing.T) {
	for _, pack := range []bool{true, false} {
		h := Header{Tag: 42, DT: DataImage, MT: MsgImage, Protocol: ProtoBinary, Time: 12345, RTL: 3, Pack: pack}
		h.Len = uint32(len(h.Encode(nil)))
		enc := h.Encode(nil)

		got, n, err := DecodeHeader(enc, pack)
		require.NoError(t, err)
		require.Equal(t, len(enc), n)
		require.Equal(t, h, got)
	}
}

func TestFieldListIdempotence(t *testing.T) {
	in := []Field{
		{ID: 22, Type: TypeString, Raw: []byte("IBM")},
		{ID: 25, Type: TypeDouble, F64: 185.32},
		{ID: 66, Type: TypeInt64, I64: 1_750_000},
		{ID: 3, Type: TypeString, Raw: []byte("Real-time")},
	}
	var buf []byte
	for _, f := range in {
		buf = EncodeField(buf, f, binary.BigEndian)
	}

	out, n, err := DecodeFields(buf, binary.BigEndian, len(in))
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Len(t, out, len(in))
	for i := range in {
		require.Equal(t, in[i].ID, out[i].ID)
		require.Equal(t, in[i].Type, out[i].Type)
		switch in[i].Type {
		case TypeString:
			require.Equal(t, in[i].String(), out[i].String())
		case TypeDouble:
			require.Equal(t, in[i].F64, out[i].F64)
		case TypeInt64:
			require.Equal(t, in[i].I64, out[i].I64)
		}
	}
}

func TestEndianIndependence(t *testing.T) {
	f := Field{ID: 25, Type: TypeDouble, F64: 185.45}

	be := EncodeField(nil, f, binary.BigEndian)
	le := EncodeField(nil, f, binary.LittleEndian)

	gotBE, _, err := DecodeField(be, binary.BigEndian, 0)
	require.NoError(t, err)
	gotLE, _, err := DecodeField(le, binary.LittleEndian, 0)
	require.NoError(t, err)

	require.Equal(t, gotBE.F64, gotLE.F64)
}

func TestUnknownTypeFails(t *testing.T) {
	buf := EncodePackedUint(nil, 1)
	buf = append(buf, 0xEE) // not a valid type byte
	_, _, err := DecodeField(buf, binary.BigEndian, 0)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, UnknownType, de.Kind)
}

func TestTruncatedValueFails(t *testing.T) {
	buf := EncodePackedUint(nil, 1)
	buf = append(buf, byte(TypeInt64)) // says int64 but no payload follows
	_, _, err := DecodeField(buf, binary.BigEndian, 0)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, TruncatedValue, de.Kind)
}
