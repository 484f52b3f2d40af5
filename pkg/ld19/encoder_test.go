// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"bytes"
	"testing"
)

func TestAppendPacket_WireShape(t *testing.T) {
	wire := AppendPacket(nil, makeTestPacket())
	if len(wire) != PacketSize {
		t.Fatalf("wire length = %d, want %d", len(wire), PacketSize)
	}
	if wire[0] != SyncByte {
		t.Errorf("wire starts with 0x%02X, want 0x%02X", wire[0], SyncByte)
	}
	if got := Checksum(wire[:offCRC]); got != wire[offCRC] {
		t.Errorf("emitted checksum 0x%02X does not validate (computed 0x%02X)", wire[offCRC], got)
	}
}

func TestAppendPacket_AppendsInPlace(t *testing.T) {
	prefix := []byte{0xDE, 0xAD}
	wire := AppendPacket(prefix, makeTestPacket())
	if len(wire) != len(prefix)+PacketSize {
		t.Fatalf("wire length = %d, want %d", len(wire), len(prefix)+PacketSize)
	}
	if !bytes.Equal(wire[:2], prefix) {
		t.Error("prefix bytes were not preserved")
	}
	if Checksum(wire[2:2+offCRC]) != wire[2+offCRC] {
		t.Error("checksum must cover only the appended packet, not the prefix")
	}
}

func TestMarshalBinary_RoundTrip(t *testing.T) {
	want := makeTestPacket()
	wire, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Packet
	if err := got.UnmarshalBinary(wire); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got != *want {
		t.Errorf("round trip changed the packet:\n got %+v\nwant %+v", got, want)
	}
}

func TestUnmarshalMarshal_ByteIdentical(t *testing.T) {
	// A valid wire image must survive decode and re-encode unchanged.
	original := validWire(makeTestPacket())

	var p Packet
	if err := p.UnmarshalBinary(original); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	reencoded, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(original, reencoded) {
		t.Errorf("re-encoded wire differs:\n got % X\nwant % X", reencoded, original)
	}
}

func TestScanSource_ProducesDecodableStream(t *testing.T) {
	src := NewScanSource(3600, 2000)
	var buf bytes.Buffer
	const n = 100
	for i := 0; i < n; i++ {
		buf.Write(src.NextWire(nil))
	}

	packets, crcErrors := drain(t, &buf)
	if crcErrors != 0 {
		t.Errorf("synthetic stream produced %d CRC errors", crcErrors)
	}
	if len(packets) != n {
		t.Fatalf("decoded %d packets, want %d", len(packets), n)
	}
	if buf.Len() != 0 {
		t.Errorf("buffer holds %d bytes after drain, want 0", buf.Len())
	}
	for i, p := range packets {
		if p.Speed != 3600 {
			t.Fatalf("packet %d speed = %d, want 3600", i, p.Speed)
		}
		if p.VerLen != VerLenNominal {
			t.Fatalf("packet %d ver_len = 0x%02X, want 0x%02X", i, p.VerLen, VerLenNominal)
		}
	}
}

func TestScanSource_Deterministic(t *testing.T) {
	a := NewScanSource(3600, 2000)
	b := NewScanSource(3600, 2000)
	for i := 0; i < 5; i++ {
		if !bytes.Equal(a.NextWire(nil), b.NextWire(nil)) {
			t.Fatalf("sources diverged at packet %d", i)
		}
	}
}

func TestScanSource_SweepsForward(t *testing.T) {
	src := NewScanSource(3600, 2000)
	stats := NewStatistics()
	// 3600 deg/s at 4500 samples/s: 9.6 deg per packet, a rotation
	// takes 37.5 packets. 100 packets must wrap at least twice.
	for i := 0; i < 100; i++ {
		stats.Update(src.Next())
	}
	if stats.Rotations < 2 {
		t.Errorf("saw %d rotations across 100 packets, want at least 2", stats.Rotations)
	}
}

func TestScanSource_ClockTracksSampleRate(t *testing.T) {
	src := NewScanSource(3600, 2000)
	// 375 packets carry 4500 points: exactly one second at the fixed
	// sample rate, so the sensor clock must advance about 1000 ms.
	last := int(src.Next().Timestamp)
	elapsed := 0
	for i := 1; i < 375; i++ {
		ts := int(src.Next().Timestamp)
		d := ts - last
		if d < 0 {
			d += 65536
		}
		if d < 2 || d > 3 {
			t.Fatalf("packet %d advanced the clock by %d ms, want 2 or 3", i, d)
		}
		elapsed += d
		last = ts
	}
	if elapsed < 990 || elapsed > 1005 {
		t.Errorf("sensor clock advanced %d ms across one second of packets, want about 1000", elapsed)
	}
}
