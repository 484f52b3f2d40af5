// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both transports must satisfy the read-only Connection contract.
var (
	_ Connection = (*SerialConnection)(nil)
	_ Connection = (*WebSocketConnection)(nil)
)

// wsTestServer runs a bridge endpoint that upgrades one client, hands
// the socket to serve and closes it afterwards. Returns the ws:// URL.
func wsTestServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		serve(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_DrainsFrameAcrossReads(t *testing.T) {
	frame := make([]byte, 100)
	for i := range frame {
		frame[i] = byte(i)
	}
	url := wsTestServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.BinaryMessage, frame)
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	// A frame larger than the caller's buffer must survive intact
	// across successive short reads.
	var got []byte
	buf := make([]byte, 32)
	for len(got) < len(frame) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, frame, got)
}

func TestWebSocketConnection_SkipsNonBinaryFrames(t *testing.T) {
	url := wsTestServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("status: spinning"))
		c.WriteMessage(websocket.BinaryMessage, []byte{0x54, 0x2C})
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x54, 0x2C}, buf[:n])
}

func TestWebSocketConnection_ClosedSentinel(t *testing.T) {
	url := wsTestServer(t, func(c *websocket.Conn) {})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	require.Error(t, err)

	// Reads after a failure report the sentinel without touching the
	// dead socket again.
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOpenWebSocketConnection_SendsBasicAuth(t *testing.T) {
	authCh := make(chan string, 1)
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	defer srv.Close()

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "operator", "hunter2", false)
	require.NoError(t, err)
	conn.Close()

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("operator:hunter2"))
	assert.Equal(t, want, <-authCh)
}

func TestOpenWebSocketConnection_RejectsBadScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://bridge.local/lidar", "", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestOpenConnection_RequiresSource(t *testing.T) {
	_, _, err := OpenConnection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--port or --url")
}

func TestGetPassword_FromEnvironment(t *testing.T) {
	t.Setenv("AZIMUTH_PASSWORD", "factory-floor")
	pw, err := GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "factory-floor", pw)
}
