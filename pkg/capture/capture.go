// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

// Package capture reads and writes raw lidar stream captures.
//
// A capture is the byte stream exactly as it arrived from the
// transport, prefixed by a small CBOR header describing where and how
// it was recorded:
//
//	"AZC1" | u32 LE header length | CBOR header | raw stream bytes
//
// Keeping the stream raw means a capture replays through the decoder
// byte-for-byte, CRC errors and pre-sync garbage included.
package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is written into every new capture header.
const FormatVersion = 1

const (
	captureMagic = "AZC1"

	// Headers are tiny; anything bigger means a corrupt preamble.
	maxHeaderSize = 1 << 16
)

// Header describes the recording session of a capture.
type Header struct {
	Version   int       `cbor:"version"`
	Source    string    `cbor:"source"` // serial port or WebSocket URL
	BaudRate  int       `cbor:"baud_rate,omitempty"`
	CreatedAt time.Time `cbor:"created_at"`
	Notes     string    `cbor:"notes,omitempty"`
}

// String returns a one-line description for command output.
func (h Header) String() string {
	s := fmt.Sprintf("v%d %s from %s", h.Version, h.CreatedAt.Format(time.RFC3339), h.Source)
	if h.BaudRate > 0 {
		s += fmt.Sprintf(" @%d baud", h.BaudRate)
	}
	if h.Notes != "" {
		s += " (" + h.Notes + ")"
	}
	return s
}

// Writer streams raw transport bytes into a capture. It writes the
// preamble once up front; Write then passes bytes through unmodified.
type Writer struct {
	w     io.Writer
	count uint64
}

// NewWriter writes the capture preamble for h onto w and returns a
// Writer for the stream body. Zero Version and CreatedAt fields are
// filled in.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if h.Version == 0 {
		h.Version = FormatVersion
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	raw, err := cbor.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capture header: %w", err)
	}

	preamble := make([]byte, 0, len(captureMagic)+4+len(raw))
	preamble = append(preamble, captureMagic...)
	preamble = binary.LittleEndian.AppendUint32(preamble, uint32(len(raw)))
	preamble = append(preamble, raw...)
	if _, err := w.Write(preamble); err != nil {
		return nil, fmt.Errorf("failed to write capture preamble: %w", err)
	}
	return &Writer{w: w}, nil
}

// Write appends stream bytes to the capture body.
func (cw *Writer) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += uint64(n)
	return n, err
}

// BytesWritten returns the number of body bytes written so far,
// excluding the preamble.
func (cw *Writer) BytesWritten() uint64 {
	return cw.count
}

// Reader exposes the raw stream body of a capture.
type Reader struct {
	r      io.Reader
	header Header
}

// OpenReader parses the capture preamble from r and returns a Reader
// positioned at the first stream byte.
func OpenReader(r io.Reader) (*Reader, error) {
	magic := make([]byte, len(captureMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read capture magic: %w", err)
	}
	if string(magic) != captureMagic {
		return nil, fmt.Errorf("not a capture file: magic % X", magic)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("failed to read capture header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint32(lenBuf[:])
	if headerLen == 0 || headerLen > maxHeaderSize {
		return nil, fmt.Errorf("implausible capture header length %d", headerLen)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	var h Header
	if err := cbor.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("failed to decode capture header: %w", err)
	}

	return &Reader{r: r, header: h}, nil
}

// Header returns the capture's recording metadata.
func (cr *Reader) Header() Header {
	return cr.header
}

// Read reads raw stream bytes from the capture body.
func (cr *Reader) Read(p []byte) (int, error) {
	return cr.r.Read(p)
}
