// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatea-dev/rtedge/internal/wire"
)

const sampleSchema = `<schema>
  <field fid="22" name="TICKER" type="1"/>
  <field fid="25" name="BID" type="3"/>
  <field fid="66" name="TIMACT" type="10"/>
</schema>`

func TestParseAndReplace(t *testing.T) {
	fields, err := ParseXML([]byte(sampleSchema))
	require.NoError(t, err)
	require.Len(t, fields, 3)

	d := New(0)
	d.Replace(fields)

	f, ok := d.ByID(25)
	require.True(t, ok)
	require.Equal(t, "BID", f.Name)
	require.Equal(t, wire.TypeDouble, f.Type)

	f, ok = d.ByName("TICKER")
	require.True(t, ok)
	require.Equal(t, 22, f.ID)
}

func TestByNameIsCaseSensitive(t *testing.T) {
	d := New(0)
	require.NoError(t, d.ReplaceXML([]byte(sampleSchema)))

	_, ok := d.ByName("ticker")
	require.False(t, ok)
	_, ok = d.ByName("TICKER")
	require.True(t, ok)
}

func TestReplaceIsAtomicUnderConcurrentReaders(t *testing.T) {
	d := New(0)
	require.NoError(t, d.ReplaceXML([]byte(sampleSchema)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.ByID(25)
					d.ByName("BID")
				}
			}
		}()
	}

	d.Replace([]Field{{ID: 25, Name: "BID", Type: wire.TypeDouble}})
	close(stop)
	wg.Wait()

	_, ok := d.ByID(22)
	require.False(t, ok, "bulk replace must drop fields absent from the new set")
	f, ok := d.ByID(25)
	require.True(t, ok)
	require.Equal(t, "BID", f.Name)
}

func TestEncodeXMLRoundTrip(t *testing.T) {
	d := New(0)
	require.NoError(t, d.ReplaceXML([]byte(sampleSchema)))

	out, err := d.EncodeXML()
	require.NoError(t, err)

	d2 := New(0)
	require.NoError(t, d2.ReplaceXML(out))

	f, ok := d2.ByID(66)
	require.True(t, ok)
	require.Equal(t, "TIMACT", f.Name)
	require.Equal(t, wire.TypeInt64, f.Type)
}
