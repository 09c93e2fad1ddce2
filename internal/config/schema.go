// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema is the JSON Schema an MDDConfig document must satisfy,
// inlined the same way the teacher's internal/config/schema.go holds
// configSchema as a raw Go string rather than an embedded file.
var configSchema = `
{
  "type": "object",
  "properties": {
    "socket": {
      "type": "object",
      "properties": {
        "network": { "type": "string", "enum": ["tcp", "udp"] },
        "addrs": { "type": "array", "items": { "type": "string" } },
        "randomize": { "type": "boolean" },
        "outCapBytes": { "type": "integer", "minimum": 0 },
        "hiWatermark": { "type": "number", "minimum": 0, "maximum": 1 },
        "loWatermark": { "type": "number", "minimum": 0, "maximum": 1 },
        "heartbeatSec": { "type": "number", "minimum": 0 },
        "dialTimeoutSec": { "type": "number", "minimum": 0 }
      }
    },
    "nats": {
      "type": "object",
      "properties": {
        "address": { "type": "string" },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "credsFilePath": { "type": "string" }
      },
      "required": ["address"]
    },
    "tape": {
      "type": "object",
      "properties": {
        "path": { "type": "string" },
        "granularitySec": { "type": "integer", "minimum": 1 },
        "maxStreams": { "type": "integer", "minimum": 1 },
        "checkpointPath": { "type": "string" }
      },
      "required": ["path"]
    },
    "lvc": {
      "type": "object",
      "properties": { "path": { "type": "string" } },
      "required": ["path"]
    },
    "chartStore": {
      "type": "object",
      "properties": { "path": { "type": "string" } },
      "required": ["path"]
    },
    "schemaPath": { "type": "string" },
    "maxStreams": { "type": "integer", "minimum": 1 },
    "eventsCap": { "type": "integer", "minimum": 1 },
    "logLevel": {
      "type": "string",
      "enum": ["debug", "info", "notice", "warn", "err", "fatal", "crit"]
    },
    "debugAddr": { "type": "string" }
  }
}
`
