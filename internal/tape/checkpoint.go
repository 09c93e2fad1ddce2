// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tape

import (
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"
)

// checkpointSchema describes one stream descriptor row in the Avro
// Object Container File written by WriteCheckpoint.
const checkpointSchema = `{
  "type": "record",
  "name": "StreamDescriptor",
  "fields": [
    {"name": "dbIdx", "type": "long"},
    {"name": "name", "type": "string"},
    {"name": "last", "type": "long"}
  ]
}`

// WriteCheckpoint dumps hdr's stream descriptor table to an Avro OCF
// file at path, letting a reader tool enumerate known streams (and
// their last sequence numbers) without decoding the tape's binary
// header — a convenience side-channel, never required to read the
// tape itself. Grounded on AvroStore.ToCheckpoint's
// goavro.NewCodec+NewOCFWriter dump in the teacher's memorystore
// package, here applied to the tape's small, slow-changing stream
// table rather than its bulk time-series data.
func WriteCheckpoint(path string, hdr Header) error {
	codec, err := goavro.NewCodec(checkpointSchema)
	if err != nil {
		return fmt.Errorf("tape: checkpoint codec: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("tape: checkpoint create %s: %w", path, err)
	}
	defer f.Close()

	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("tape: checkpoint writer: %w", err)
	}

	records := make([]any, 0, len(hdr.Streams))
	for _, sd := range hdr.Streams {
		if sd.Last == 0 {
			continue // unused descriptor slot
		}
		records = append(records, map[string]any{
			"dbIdx": int64(sd.DBIdx),
			"name":  sd.Name,
			"last":  int64(sd.Last),
		})
	}
	if len(records) == 0 {
		return nil
	}
	return writer.Append(records)
}

// ReadCheckpoint reads back a file written by WriteCheckpoint.
func ReadCheckpoint(path string) ([]StreamDesc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tape: checkpoint open %s: %w", path, err)
	}
	defer f.Close()

	reader, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, fmt.Errorf("tape: checkpoint reader: %w", err)
	}

	var out []StreamDesc
	for reader.Scan() {
		rec, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("tape: checkpoint read: %w", err)
		}
		m := rec.(map[string]any)
		out = append(out, StreamDesc{
			DBIdx: uint32(m["dbIdx"].(int64)),
			Name:  m["name"].(string),
			Last:  uint64(m["last"].(int64)),
		})
	}
	return out, nil
}
