// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Separator bytes used inside XML attribute lists (spec.md §6).
const (
	SepFS       = 0x1C // packed attribute lists
	SepCSV      = ','  // CSV attributes
	SepService  = ';'  // service lists
	SepSvcState = ':'  // service:status pairs
)

// xmlMessageNames maps MessageType to the XML envelope element name.
var xmlMessageNames = map[MessageType]string{
	MsgImage:  "IMG",
	MsgUpdate: "UPD",
	MsgStatus: "STS",
	MsgPing:   "Ping",
	MsgOpen:   "OPN",
	MsgClose:  "CLS",
	MsgMount:  "MNT",
	MsgInsert: "INSERT",
	MsgQuery:  "QUERY",
	MsgAck:    "INSACK",
}

var xmlMessageTypes = func() map[string]MessageType {
	m := make(map[string]MessageType, len(xmlMessageNames))
	for mt, name := range xmlMessageNames {
		m[name] = mt
	}
	m["DRP"] = MsgStatus
	m["CTL"] = MsgMount
	return m
}()

// XMLEnvelope is the decoded form of the XML alternate protocol's
// <root attr="val"...> document (spec.md §6). Fields appear as child
// elements carrying the field id in a fid attribute and the type id in a
// type attribute.
type XMLEnvelope struct {
	MT       MessageType
	Decimal  string
	FIDs     string
	Name     string
	Peer     string
	PID      string
	Priority string
	RTL      uint32
	Time     uint32
	Template string
	ABSE     string
	Fields   []Field
}

type xmlFieldElem struct {
	FID   uint32 `xml:"fid,attr"`
	Type  uint8  `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// EncodeXML renders e as an XML document using the envelope element name
// for e.MT.
func (c *Codec) EncodeXML(e XMLEnvelope) ([]byte, error) {
	name, ok := xmlMessageNames[e.MT]
	if !ok {
		return nil, newErr(UnknownType, 0, fmt.Sprintf("message type %d has no XML element", e.MT))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<%s", name)
	writeAttr(&sb, "Decimal", e.Decimal)
	writeAttr(&sb, "FIDs", e.FIDs)
	writeAttr(&sb, "FieldName", e.Name)
	writeAttr(&sb, "PEER", e.Peer)
	writeAttr(&sb, "PID", e.PID)
	writeAttr(&sb, "Priority", e.Priority)
	if e.RTL != 0 {
		writeAttr(&sb, "RTL", strconv.FormatUint(uint64(e.RTL), 10))
	}
	writeAttr(&sb, "Time", strconv.FormatUint(uint64(e.Time), 10))
	writeAttr(&sb, "Template", e.Template)
	writeAttr(&sb, "ABSE", e.ABSE)
	sb.WriteString(">")

	for _, f := range e.Fields {
		elem := xmlFieldElem{FID: f.ID, Type: uint8(f.Type), Value: fieldValueString(f)}
		b, err := xml.Marshal(elem)
		if err != nil {
			return nil, err
		}
		sb.Write(b)
	}
	fmt.Fprintf(&sb, "</%s>", name)
	return []byte(sb.String()), nil
}

func writeAttr(sb *strings.Builder, name, val string) {
	if val == "" {
		return
	}
	fmt.Fprintf(sb, ` %s=%q`, name, val)
}

func fieldValueString(f Field) string {
	switch f.Type {
	case TypeString, TypeBytestream:
		return f.String()
	case TypeInt32:
		return strconv.FormatInt(int64(f.I32), 10)
	case TypeDouble:
		return strconv.FormatFloat(f.F64, 'g', -1, 64)
	default:
		return ""
	}
}

// DecodeXML parses an XML document produced by EncodeXML (or a compliant
// peer) into an XMLEnvelope.
func (c *Codec) DecodeXML(src []byte) (XMLEnvelope, error) {
	type rawField struct {
		FID   uint32 `xml:"fid,attr"`
		Type  uint8  `xml:"type,attr"`
		Value string `xml:",chardata"`
	}
	type rawEnvelope struct {
		XMLName  xml.Name
		Decimal  string     `xml:"Decimal,attr"`
		FIDs     string     `xml:"FIDs,attr"`
		Name     string     `xml:"FieldName,attr"`
		Peer     string     `xml:"PEER,attr"`
		PID      string     `xml:"PID,attr"`
		Priority string     `xml:"Priority,attr"`
		RTL      uint32     `xml:"RTL,attr"`
		Time     uint32     `xml:"Time,attr"`
		Template string     `xml:"Template,attr"`
		ABSE     string     `xml:"ABSE,attr"`
		Fields   []rawField `xml:",any"`
	}

	var raw rawEnvelope
	if err := xml.Unmarshal(src, &raw); err != nil {
		return XMLEnvelope{}, newErr(MalformedFrame, 0, err.Error())
	}
	mt, ok := xmlMessageTypes[raw.XMLName.Local]
	if !ok {
		return XMLEnvelope{}, newErr(UnknownType, 0, "unrecognized XML envelope element "+raw.XMLName.Local)
	}

	fields := make([]Field, 0, len(raw.Fields))
	for _, rf := range raw.Fields {
		f := Field{ID: rf.FID, Type: Type(rf.Type)}
		if !f.Type.valid() {
			return XMLEnvelope{}, newErr(UnknownType, 0, "field type byte")
		}
		switch f.Type {
		case TypeString, TypeBytestream:
			f.Raw = []byte(rf.Value)
		case TypeInt32:
			v, _ := strconv.ParseInt(rf.Value, 10, 32)
			f.I32 = int32(v)
		case TypeDouble:
			v, _ := strconv.ParseFloat(rf.Value, 64)
			f.F64 = v
		}
		fields = append(fields, f)
	}

	return XMLEnvelope{
		MT: mt, Decimal: raw.Decimal, FIDs: raw.FIDs, Name: raw.Name,
		Peer: raw.Peer, PID: raw.PID, Priority: raw.Priority,
		RTL: raw.RTL, Time: raw.Time, Template: raw.Template, ABSE: raw.ABSE,
		Fields: fields,
	}, nil
}
