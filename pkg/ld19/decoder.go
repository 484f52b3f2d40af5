// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"bytes"
	"fmt"
)

// CRCError reports a candidate packet whose checksum did not match.
// By the time Decode returns one it has already advanced the buffer
// past the offending sync byte; callers count the event and keep
// feeding bytes.
type CRCError struct {
	Want byte // checksum computed over the candidate's first 46 bytes
	Got  byte // checksum byte carried on the wire
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch: computed 0x%02X, wire carries 0x%02X", e.Want, e.Got)
}

// Decoder extracts packets from an accumulating byte stream. It holds
// no state of its own: everything lives in the caller's buffer, so the
// zero value is ready to use and one Decoder can serve any number of
// streams in turn.
//
// The intended loop appends each chunk read from the transport to one
// buffer, then drains it:
//
//	var dec ld19.Decoder
//	var buf bytes.Buffer
//	for {
//		buf.Write(readChunk())
//		for {
//			p, err := dec.Decode(&buf)
//			if err != nil {
//				stats.RecordCRCError()
//				continue
//			}
//			if p == nil {
//				break // need more data
//			}
//			consume(p)
//		}
//	}
//
// Packets come out in the order their sync bytes appear in the stream.
// Decode never blocks and never touches the transport. The buffer is
// an exclusively owned resource of the read loop; Decode must not run
// concurrently against the same buffer.
type Decoder struct{}

// Decode scans buf for the next packet and may truncate a prefix of
// buf on every call. It returns a packet on success, (nil, nil) when
// buf does not yet hold a complete candidate, or a *CRCError when a
// candidate failed validation.
//
// Buffer handling per call:
//   - no sync byte anywhere: the whole buffer is discarded. Bytes that
//     cannot start a packet are garbage; a packet tail whose sync byte
//     was lost to earlier corruption could never validate anyway.
//   - sync byte at position p, fewer than 47 bytes from p: buf is left
//     untouched from p onward so the candidate survives the next read.
//   - checksum match: bytes [0, p+47) are consumed, pre-sync garbage
//     included, and the candidate decodes into a fresh Packet.
//   - checksum mismatch: bytes [0, p+1) are consumed so the next call
//     resumes scanning one byte past the false sync byte. A stray 0x54
//     costs exactly one byte of progress, so resynchronization is
//     bounded by the buffer length.
func (Decoder) Decode(buf *bytes.Buffer) (*Packet, error) {
	data := buf.Bytes()
	start := bytes.IndexByte(data, SyncByte)
	if start < 0 {
		buf.Reset()
		return nil, nil
	}
	if len(data)-start < PacketSize {
		return nil, nil
	}

	candidate := data[start : start+PacketSize]
	want := Checksum(candidate[:offCRC])
	got := candidate[offCRC]
	if want != got {
		buf.Next(start + 1)
		return nil, &CRCError{Want: want, Got: got}
	}

	var p Packet
	if err := p.UnmarshalBinary(candidate); err != nil {
		// unreachable: the candidate slice is exactly PacketSize
		return nil, err
	}
	buf.Next(start + PacketSize)
	return &p, nil
}
