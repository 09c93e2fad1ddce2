// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import "encoding/binary"

// Codec bi-directionally translates between in-memory Fields/Headers and
// byte streams for both the binary and XML protocols (spec.md §4.1). The
// wire form is always big-endian network order; Host additionally
// records the host's own endianness so cross-endian callers (the tape
// reader) can detect when a byte-swap overlay is needed on raw files
// produced by a foreign-endian writer.
type Codec struct {
	Host     binary.ByteOrder
	Protocol Protocol
	Pack     bool
}

// NewCodec constructs a Codec for the current host, defaulting to the
// binary protocol with packed integers, matching the teacher's pattern of
// a small value-type "client" object holding just enough state to dispatch
// (pkg/nats.Client wraps a *nats.Conn the same way this wraps a byte order).
func NewCodec() *Codec {
	return &Codec{Host: hostEndian(), Protocol: ProtoBinary, Pack: true}
}

// SetProtocol switches the active wire encoding. Per spec.md §4.1 this must
// only be called while the owning socket's output buffer is idle; callers
// (internal/pubsub.Channel) enforce that precondition.
func (c *Codec) SetProtocol(p Protocol) { c.Protocol = p }

// EncodeMessage encodes a header followed by its fields into a single wire
// buffer, filling in Header.Len from the final size.
func (c *Codec) EncodeMessage(h Header, fields []Field) []byte {
	h.Pack = c.Pack
	body := make([]byte, 0, 64+16*len(fields))
	for _, f := range fields {
		body = EncodeField(body, f, binary.BigEndian)
	}
	hdrSize := len(h.Encode(nil))
	h.Len = uint32(hdrSize + len(body))
	hdr := h.Encode(nil)
	out := make([]byte, 0, len(hdr)+len(body))
	out = append(out, hdr...)
	out = append(out, body...)
	return out
}

// DecodeMessage decodes a header and its trailing fields from src.
func (c *Codec) DecodeMessage(src []byte) (Header, []Field, error) {
	h, n, err := DecodeHeader(src, c.Pack)
	if err != nil {
		return Header{}, nil, err
	}
	if int(h.Len) > len(src) {
		return Header{}, nil, newErr(MalformedFrame, 0, "length exceeds buffer")
	}
	body := src[n:h.Len]
	var fields []Field
	off := 0
	for off < len(body) {
		f, consumed, err := DecodeField(body[off:], binary.BigEndian, n+off)
		if err != nil {
			return Header{}, nil, err
		}
		fields = append(fields, f)
		off += consumed
	}
	return h, fields, nil
}
