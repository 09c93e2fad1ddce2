// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"math"
)

// Type is the wire-level field type identifier byte (spec.md §6). The
// numeric values must match exactly; they are part of the wire contract.
type Type uint8

const (
	TypeString       Type = 1
	TypeInt32        Type = 2
	TypeDouble       Type = 3
	TypeDate         Type = 4
	TypeTime         Type = 5
	TypeTimestamp    Type = 6
	TypeFloat        Type = 7
	TypeInt8         Type = 8
	TypeInt16        Type = 9
	TypeInt64        Type = 10
	TypeReal         Type = 11
	TypeBytestream   Type = 12
	TypeUnixTime     Type = 13
	TypeVectorDouble Type = 14
	TypeUint32       Type = 15
	TypeUint64       Type = 16
)

func (t Type) valid() bool {
	return t >= TypeString && t <= TypeUint64
}

// Date is a calendar date carried by a TypeDate field.
type Date struct {
	Year  int16
	Month uint8
	Day   uint8
}

// ClockTime is a time-of-day carried by a TypeTime field, with millisecond
// resolution.
type ClockTime struct {
	Hour   uint8
	Minute uint8
	Second uint8
	Millis uint16
}

// Real is the fixed-point "real" type: an integer mantissa plus a decimal
// hint byte (low 4 bits = decimal count, top bit = negative), per spec.md
// §4.1. Mantissa itself already carries a sign via the packed-signed wire
// form; Negative additionally distinguishes signed zero.
type Real struct {
	Mantissa int64
	Decimals uint8
	Negative bool
}

// Float64 returns the real value as a float64.
func (r Real) Float64() float64 {
	v := float64(r.Mantissa)
	for range int(r.Decimals) {
		v /= 10
	}
	if r.Negative && r.Mantissa == 0 {
		return math.Copysign(0, -1)
	}
	return v
}

// Field is a typed wire value. Fields decoded from a codec buffer borrow
// their Raw payload for the life of the enclosing message (spec.md §3);
// callers that need to retain a field past that lifetime must copy it
// (see Field.Clone). A decoded Vector is a fresh slice of its own.
type Field struct {
	ID   uint32
	Name string
	Type Type

	I8        int8
	I16       int16
	I32       int32
	I64       int64
	U32       uint32
	U64       uint64
	F32       float32
	F64       float64
	Real      Real
	Date      Date
	Time      ClockTime
	UnixNanos int64

	// Raw holds the payload bytes for TypeString/TypeBytestream. For
	// TypeString it is only valid as long as the decode buffer is alive;
	// use String() to obtain an owned copy.
	Raw []byte

	// Vector holds the decoded values for TypeVectorDouble.
	Vector []float64
}

// String returns an owned copy of a TypeString field's payload.
func (f Field) String() string { return string(f.Raw) }

// Clone returns a Field whose Raw/Vector slices are independent of the
// decode buffer it was read from.
func (f Field) Clone() Field {
	if f.Raw != nil {
		raw := make([]byte, len(f.Raw))
		copy(raw, f.Raw)
		f.Raw = raw
	}
	if f.Vector != nil {
		vec := make([]float64, len(f.Vector))
		copy(vec, f.Vector)
		f.Vector = vec
	}
	return f
}

// fixedWidth returns the number of bytes a fixed-width type occupies on the
// wire, or 0 if the type carries an explicit packed length instead.
func fixedWidth(t Type) int {
	switch t {
	case TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32, TypeFloat, TypeUint32:
		return 4
	case TypeInt64, TypeDouble, TypeUnixTime, TypeUint64:
		return 8
	case TypeDate:
		return 4
	case TypeTime:
		return 5
	case TypeTimestamp:
		return 8
	default:
		return 0
	}
}

// EncodeField appends the wire encoding of f (id, type, [length], payload)
// to dst using bo for all fixed-width numeric payloads, and using the
// packed-integer scheme for the field id and for variable-length counts.
func EncodeField(dst []byte, f Field, bo binary.ByteOrder) []byte {
	dst = EncodePackedUint(dst, uint64(f.ID))
	dst = append(dst, byte(f.Type))

	switch f.Type {
	case TypeInt8:
		dst = append(dst, byte(f.I8))
	case TypeInt16:
		var b [2]byte
		bo.PutUint16(b[:], uint16(f.I16))
		dst = append(dst, b[:]...)
	case TypeInt32:
		var b [4]byte
		bo.PutUint32(b[:], uint32(f.I32))
		dst = append(dst, b[:]...)
	case TypeUint32:
		var b [4]byte
		bo.PutUint32(b[:], f.U32)
		dst = append(dst, b[:]...)
	case TypeInt64:
		var b [8]byte
		bo.PutUint64(b[:], uint64(f.I64))
		dst = append(dst, b[:]...)
	case TypeUint64:
		var b [8]byte
		bo.PutUint64(b[:], f.U64)
		dst = append(dst, b[:]...)
	case TypeFloat:
		var b [4]byte
		bo.PutUint32(b[:], math.Float32bits(f.F32))
		dst = append(dst, b[:]...)
	case TypeDouble:
		var b [8]byte
		bo.PutUint64(b[:], math.Float64bits(f.F64))
		dst = append(dst, b[:]...)
	case TypeUnixTime:
		var b [8]byte
		bo.PutUint64(b[:], uint64(f.UnixNanos))
		dst = append(dst, b[:]...)
	case TypeDate:
		var b [4]byte
		bo.PutUint16(b[0:2], uint16(f.Date.Year))
		b[2] = f.Date.Month
		b[3] = f.Date.Day
		dst = append(dst, b[:]...)
	case TypeTime:
		var b [5]byte
		b[0] = f.Time.Hour
		b[1] = f.Time.Minute
		b[2] = f.Time.Second
		bo.PutUint16(b[3:5], f.Time.Millis)
		dst = append(dst, b[:]...)
	case TypeTimestamp:
		var b [8]byte
		bo.PutUint64(b[:], uint64(f.UnixNanos))
		dst = append(dst, b[:]...)
	case TypeReal:
		dst = EncodePackedInt(dst, f.Real.Mantissa)
		hint := f.Real.Decimals & 0x0f
		if f.Real.Negative {
			hint |= 0x80
		}
		dst = append(dst, hint)
	case TypeString, TypeBytestream:
		dst = EncodePackedUint(dst, uint64(len(f.Raw)))
		dst = append(dst, f.Raw...)
	case TypeVectorDouble:
		dst = EncodePackedUint(dst, uint64(len(f.Vector)))
		for _, v := range f.Vector {
			var b [8]byte
			bo.PutUint64(b[:], math.Float64bits(v))
			dst = append(dst, b[:]...)
		}
	}
	return dst
}

// DecodeField decodes one field starting at src[0]. pos is the absolute
// offset of src[0] within the enclosing message, used only to annotate
// DecodeError.
func DecodeField(src []byte, bo binary.ByteOrder, pos int) (Field, int, error) {
	id, n, ok := DecodePackedUint(src)
	if !ok {
		return Field{}, 0, newErr(TruncatedValue, pos, "field id")
	}
	off := n
	if off >= len(src) {
		return Field{}, 0, newErr(TruncatedValue, pos+off, "field type")
	}
	t := Type(src[off])
	off++
	if !t.valid() {
		return Field{}, 0, newErr(UnknownType, pos+off-1, "type byte")
	}

	f := Field{ID: uint32(id), Type: t}

	need := func(n int) error {
		if off+n > len(src) {
			return newErr(TruncatedValue, pos+off, "payload")
		}
		return nil
	}

	switch t {
	case TypeInt8:
		if err := need(1); err != nil {
			return Field{}, 0, err
		}
		f.I8 = int8(src[off])
		off++
	case TypeInt16:
		if err := need(2); err != nil {
			return Field{}, 0, err
		}
		f.I16 = int16(bo.Uint16(src[off:]))
		off += 2
	case TypeInt32:
		if err := need(4); err != nil {
			return Field{}, 0, err
		}
		f.I32 = int32(bo.Uint32(src[off:]))
		off += 4
	case TypeUint32:
		if err := need(4); err != nil {
			return Field{}, 0, err
		}
		f.U32 = bo.Uint32(src[off:])
		off += 4
	case TypeInt64:
		if err := need(8); err != nil {
			return Field{}, 0, err
		}
		f.I64 = int64(bo.Uint64(src[off:]))
		off += 8
	case TypeUint64:
		if err := need(8); err != nil {
			return Field{}, 0, err
		}
		f.U64 = bo.Uint64(src[off:])
		off += 8
	case TypeFloat:
		if err := need(4); err != nil {
			return Field{}, 0, err
		}
		f.F32 = math.Float32frombits(bo.Uint32(src[off:]))
		off += 4
	case TypeDouble:
		if err := need(8); err != nil {
			return Field{}, 0, err
		}
		f.F64 = math.Float64frombits(bo.Uint64(src[off:]))
		off += 8
	case TypeUnixTime, TypeTimestamp:
		if err := need(8); err != nil {
			return Field{}, 0, err
		}
		f.UnixNanos = int64(bo.Uint64(src[off:]))
		off += 8
	case TypeDate:
		if err := need(4); err != nil {
			return Field{}, 0, err
		}
		f.Date = Date{Year: int16(bo.Uint16(src[off:])), Month: src[off+2], Day: src[off+3]}
		off += 4
	case TypeTime:
		if err := need(5); err != nil {
			return Field{}, 0, err
		}
		f.Time = ClockTime{Hour: src[off], Minute: src[off+1], Second: src[off+2], Millis: bo.Uint16(src[off+3:])}
		off += 5
	case TypeReal:
		mant, mn, ok := DecodePackedInt(src[off:])
		if !ok {
			return Field{}, 0, newErr(TruncatedValue, pos+off, "real mantissa")
		}
		off += mn
		if err := need(1); err != nil {
			return Field{}, 0, err
		}
		hint := src[off]
		off++
		f.Real = Real{Mantissa: mant, Decimals: hint & 0x0f, Negative: hint&0x80 != 0}
	case TypeString, TypeBytestream:
		length, ln, ok := DecodePackedUint(src[off:])
		if !ok {
			return Field{}, 0, newErr(TruncatedValue, pos+off, "field length")
		}
		off += ln
		if err := need(int(length)); err != nil {
			return Field{}, 0, err
		}
		f.Raw = src[off : off+int(length) : off+int(length)]
		off += int(length)
	case TypeVectorDouble:
		count, cn, ok := DecodePackedUint(src[off:])
		if !ok {
			return Field{}, 0, newErr(TruncatedValue, pos+off, "vector count")
		}
		off += cn
		if err := need(int(count) * 8); err != nil {
			return Field{}, 0, err
		}
		vec := make([]float64, count)
		for i := range vec {
			vec[i] = math.Float64frombits(bo.Uint64(src[off:]))
			off += 8
		}
		f.Vector = vec
	}
	return f, off, nil
}

// DecodeFields decodes a sequence of n fields from src, returning the
// fields and the total bytes consumed.
func DecodeFields(src []byte, bo binary.ByteOrder, n int) ([]Field, int, error) {
	fields := make([]Field, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		f, consumed, err := DecodeField(src[off:], bo, off)
		if err != nil {
			return nil, off, err
		}
		fields = append(fields, f)
		off += consumed
	}
	return fields, off, nil
}
