// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the flat JSON configuration document that drives
// a Pump/Channel process, exactly as the teacher's internal/config loads
// its ProgramConfig: read the file, validate it against an embedded
// JSON Schema, then decode it with encoding/json, rejecting unknown
// fields.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gatea-dev/rtedge/internal/iosock"
	"github.com/gatea-dev/rtedge/pkg/nats"
)

// SocketConfig is the framed-transport sub-document.
type SocketConfig struct {
	Network        string   `json:"network,omitempty"`
	Addrs          []string `json:"addrs"`
	Randomize      bool     `json:"randomize,omitempty"`
	OutCapBytes    int      `json:"outCapBytes,omitempty"`
	HiWatermark    float64  `json:"hiWatermark,omitempty"`
	LoWatermark    float64  `json:"loWatermark,omitempty"`
	HeartbeatSec   float64  `json:"heartbeatSec,omitempty"`
	DialTimeoutSec float64  `json:"dialTimeoutSec,omitempty"`
}

// ToSocketConfig and ToAddrs translate the JSON sub-document into
// internal/iosock's own Config/Addr types, keeping the JSON shape
// (flat, unit-suffixed field names) independent of iosock's internal
// duration/byte-count representation.
func (s SocketConfig) ToSocketConfig() iosock.Config {
	return iosock.Config{
		Network:        s.Network,
		Randomize:      s.Randomize,
		OutCap:         s.OutCapBytes,
		HiWatermark:    s.HiWatermark,
		LoWatermark:    s.LoWatermark,
		HeartbeatEvery: time.Duration(s.HeartbeatSec * float64(time.Second)),
		DialTimeout:    time.Duration(s.DialTimeoutSec * float64(time.Second)),
	}
}

func (s SocketConfig) ToAddrs() ([]iosock.Addr, error) {
	out := make([]iosock.Addr, 0, len(s.Addrs))
	for _, a := range s.Addrs {
		host, port, err := splitHostPort(a)
		if err != nil {
			return nil, fmt.Errorf("config: socket addr %q: %w", a, err)
		}
		out = append(out, iosock.Addr{Host: host, Port: port})
	}
	return out, nil
}

// NatsConfig mirrors the teacher's NatsConfig nesting (ClusterCockpit's
// own MetricStoreConfig/NatsConfig sub-documents), adapted to
// pkg/nats.Config's fields.
type NatsConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"credsFilePath,omitempty"`
}

func (n NatsConfig) ToNatsConfig() *nats.Config {
	return &nats.Config{
		Address:       n.Address,
		Username:      n.Username,
		Password:      n.Password,
		CredsFilePath: n.CredsFilePath,
	}
}

// TapeConfig is the append-only journal sub-document.
type TapeConfig struct {
	Path           string `json:"path"`
	GranularitySec int    `json:"granularitySec,omitempty"`
	MaxStreams     int    `json:"maxStreams,omitempty"`
	CheckpointPath string `json:"checkpointPath,omitempty"`
}

// StoreConfig is the shared shape of the LVC and ChartStore sub-documents:
// both are just a path to an existing mmap'd file this process reads.
type StoreConfig struct {
	Path string `json:"path"`
}

// MDDConfig is the top-level MD-Direct configuration document (spec.md
// §6's "external interfaces" configuration surface), the direct analogue
// of the teacher's schema.ProgramConfig.
type MDDConfig struct {
	Socket      SocketConfig `json:"socket"`
	NATS        *NatsConfig  `json:"nats,omitempty"`
	Tape        *TapeConfig  `json:"tape,omitempty"`
	LVC         *StoreConfig `json:"lvc,omitempty"`
	ChartStore  *StoreConfig `json:"chartStore,omitempty"`
	SchemaPath  string       `json:"schemaPath,omitempty"`
	MaxStreams  int          `json:"maxStreams,omitempty"`
	EventsCap   int          `json:"eventsCap,omitempty"`
	LogLevel    string       `json:"logLevel,omitempty"`
	DebugAddr   string       `json:"debugAddr,omitempty"`
}

// Defaults returns an MDDConfig with the same fallbacks the dependent
// packages themselves apply (so a caller can inspect the effective
// config before those packages fill in their own zero-value defaults).
func Defaults() MDDConfig {
	return MDDConfig{
		Socket: SocketConfig{
			Network:        "tcp",
			OutCapBytes:    1 << 20,
			HiWatermark:    0.8,
			LoWatermark:    0.4,
			HeartbeatSec:   5,
			DialTimeoutSec: 5,
		},
		MaxStreams: 65536,
		EventsCap:  8192,
		LogLevel:   "info",
	}
}

// Load reads path, validates it against the embedded JSON Schema, and
// decodes it over Defaults(), rejecting unknown fields exactly as the
// teacher's config.Init does with its json.Decoder.DisallowUnknownFields.
func Load(path string) (MDDConfig, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return MDDConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return MDDConfig{}, fmt.Errorf("config: validate %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return MDDConfig{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if len(cfg.Socket.Addrs) == 0 && cfg.NATS == nil {
		return MDDConfig{}, fmt.Errorf("config: at least one of socket.addrs or nats is required")
	}

	return cfg, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := splitLast(addr, ':')
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func splitLast(s string, sep byte) (string, string, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sep {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing %q separator", string(sep))
}
