// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package iosock

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listenLocal(t *testing.T) (net.Listener, Addr) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpAddr := ln.Addr().(*net.TCPAddr)
	return ln, Addr{Host: "127.0.0.1", Port: tcpAddr.Port}
}

func TestConnectAndWriteRoundTrip(t *testing.T) {
	ln, addr := listenLocal(t)
	defer ln.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	connected := make(chan struct{}, 1)
	s := New(Config{OutCap: 1024})
	s.OnConnect = func() { connected <- struct{}{} }

	require.NoError(t, s.Connect([]Addr{addr}))
	<-connected
	require.Equal(t, Connected, s.State())

	ok := s.Write([]byte("hello"))
	require.True(t, ok)

	server := <-serverConnCh
	defer server.Close()

	buf := make([]byte, 5)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestWriteOverflowStagesAndReturnsFalse(t *testing.T) {
	// An unconnected Socket has no conn to drain into, so nothing written
	// ever leaves the output buffer.
	s := New(Config{OutCap: 8})
	require.Equal(t, Idle, s.State())

	ok := s.Write([]byte("12345678")) // exactly fills cap
	require.True(t, ok)

	ok = s.Write([]byte("x")) // would overflow
	require.False(t, ok)

	s.ovMu.Lock()
	overflowLen := len(s.overflow)
	s.ovMu.Unlock()
	require.Equal(t, 1, overflowLen)
}

func TestWriteOversizedSingleCallFillsCapAndStagesExcess(t *testing.T) {
	// An unconnected Socket has no conn to drain into, so nothing written
	// ever leaves the output buffer.
	s := New(Config{OutCap: 8})
	require.Equal(t, Idle, s.State())

	// A single write larger than the cap must fill the output buffer to
	// cap and stage only the excess, not the whole slice.
	ok := s.Write([]byte("123456789012")) // 12 bytes into an 8-byte cap
	require.False(t, ok)

	s.mu.Lock()
	outLen := s.out.Len()
	s.mu.Unlock()
	require.Equal(t, 8, outLen)

	s.ovMu.Lock()
	overflow := string(s.overflow)
	s.ovMu.Unlock()
	require.Equal(t, "9012", overflow)
}

func TestDisconnectInvokesCallback(t *testing.T) {
	ln, addr := listenLocal(t)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close() // immediately close so the client read loop sees EOF
		}
	}()

	done := make(chan string, 1)
	s := New(Config{})
	s.OnDisconnect = func(reason string) { done <- reason }

	require.NoError(t, s.Connect([]Addr{addr}))

	select {
	case reason := <-done:
		require.NotEmpty(t, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
	require.Equal(t, Disconnected, s.State())
}
