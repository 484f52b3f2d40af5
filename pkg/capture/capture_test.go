// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package capture

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_RoundTrip(t *testing.T) {
	var file bytes.Buffer
	created := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)

	w, err := NewWriter(&file, Header{
		Source:    "/dev/ttyUSB0",
		BaudRate:  230400,
		CreatedAt: created,
		Notes:     "bench sweep",
	})
	require.NoError(t, err)

	body := []byte{0x54, 0x2C, 0x10, 0x0E, 0xAA, 0xBB}
	n, err := w.Write(body)
	require.NoError(t, err)
	assert.Equal(t, len(body), n)
	assert.Equal(t, uint64(len(body)), w.BytesWritten())

	r, err := OpenReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)

	h := r.Header()
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, "/dev/ttyUSB0", h.Source)
	assert.Equal(t, 230400, h.BaudRate)
	assert.True(t, h.CreatedAt.Equal(created))
	assert.Equal(t, "bench sweep", h.Notes)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestNewWriter_FillsDefaults(t *testing.T) {
	var file bytes.Buffer
	_, err := NewWriter(&file, Header{Source: "ws://bridge.local/lidar"})
	require.NoError(t, err)

	r, err := OpenReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, r.Header().Version)
	assert.False(t, r.Header().CreatedAt.IsZero())
}

func TestOpenReader_RejectsBadMagic(t *testing.T) {
	_, err := OpenReader(bytes.NewReader([]byte("NOPE\x00\x00\x00\x00")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a capture file")
}

func TestOpenReader_RejectsTruncatedPreamble(t *testing.T) {
	var file bytes.Buffer
	_, err := NewWriter(&file, Header{Source: "/dev/ttyUSB0"})
	require.NoError(t, err)

	// Chop the preamble mid-header.
	truncated := file.Bytes()[:file.Len()-3]
	_, err = OpenReader(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestOpenReader_RejectsImplausibleHeaderLength(t *testing.T) {
	bad := []byte("AZC1\xFF\xFF\xFF\xFF")
	_, err := OpenReader(bytes.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implausible")
}

func TestHeader_String(t *testing.T) {
	h := Header{
		Version:   1,
		Source:    "/dev/ttyUSB0",
		BaudRate:  230400,
		CreatedAt: time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
		Notes:     "garage",
	}
	s := h.String()
	assert.Contains(t, s, "/dev/ttyUSB0")
	assert.Contains(t, s, "230400")
	assert.Contains(t, s, "garage")
}

func TestWriter_EmptyBody(t *testing.T) {
	var file bytes.Buffer
	w, err := NewWriter(&file, Header{Source: "/dev/ttyACM0"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.BytesWritten())

	r, err := OpenReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}
