// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdd-config.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadMinimalSocketConfig(t *testing.T) {
	path := writeConfig(t, `{
		"socket": { "addrs": ["feed.example.com:9000"] },
		"schemaPath": "/etc/mdd/fields.xml"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"feed.example.com:9000"}, cfg.Socket.Addrs)
	require.Equal(t, "tcp", cfg.Socket.Network) // default survives decode
	require.Equal(t, 65536, cfg.MaxStreams)     // Defaults() fallback

	addrs, err := cfg.Socket.ToAddrs()
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.Equal(t, "feed.example.com", addrs[0].Host)
	require.Equal(t, 9000, addrs[0].Port)
}

func TestLoadNatsConfig(t *testing.T) {
	path := writeConfig(t, `{
		"nats": { "address": "nats://localhost:4222" },
		"tape": { "path": "/var/mdd/tape.dat", "maxStreams": 512 }
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.NATS)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.Address)
	require.Equal(t, 512, cfg.Tape.MaxStreams)

	nc := cfg.NATS.ToNatsConfig()
	require.Equal(t, "nats://localhost:4222", nc.Address)
}

func TestLoadRejectsMissingTransport(t *testing.T) {
	path := writeConfig(t, `{ "schemaPath": "/etc/mdd/fields.xml" }`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{
		"socket": { "addrs": ["h:1"] },
		"bogusField": true
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	path := writeConfig(t, `{
		"socket": { "addrs": ["h:1"], "hiWatermark": 2.5 }
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
