// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomNoise fills a slice with random bytes that are never the sync
// byte, so embedded packets stay the only sync positions.
func randomNoise(rng *rand.Rand, n int) []byte {
	noise := make([]byte, n)
	for i := range noise {
		b := byte(rng.Intn(256))
		if b == SyncByte {
			b++
		}
		noise[i] = b
	}
	return noise
}

// randomPacket builds a packet with random field values and a correct
// checksum.
func randomPacket(rng *rand.Rand) *Packet {
	p := &Packet{
		VerLen:     byte(rng.Intn(256)),
		Speed:      uint16(rng.Intn(65536)),
		StartAngle: uint16(rng.Intn(36000)),
		EndAngle:   uint16(rng.Intn(36000)),
		Timestamp:  uint16(rng.Intn(65536)),
	}
	for i := range p.Points {
		p.Points[i] = Point{
			Distance:  uint16(rng.Intn(65536)),
			Intensity: byte(rng.Intn(256)),
		}
	}
	wire, _ := p.MarshalBinary()
	p.CRC = wire[offCRC]
	return p
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_SyncFreeGarbage feeds buffers with no sync byte and
// verifies every call discards everything and reports need-more-data
func TestFuzzDecoder_SyncFreeGarbage(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	var dec Decoder
	for i := 0; i < rounds; i++ {
		var buf bytes.Buffer
		buf.Write(randomNoise(rng, rng.Intn(512)+1))

		p, err := dec.Decode(&buf)
		if p != nil || err != nil {
			t.Fatalf("Round %d: Decode = (%v, %v), want (nil, nil)", i, p, err)
		}
		if buf.Len() != 0 {
			t.Fatalf("Round %d: %d bytes survived a sync-free scan", i, buf.Len())
		}
	}
}

// TestFuzzDecoder_ArbitraryGarbage feeds fully random buffers and
// verifies the drain loop always terminates without panicking. Random
// data may validate by coincidence, so only forward progress is
// asserted, not the absence of packets.
func TestFuzzDecoder_ArbitraryGarbage(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	var dec Decoder
	for i := 0; i < rounds; i++ {
		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		var buf bytes.Buffer
		buf.Write(data)

		for calls := 0; ; calls++ {
			if calls > length+1 {
				t.Fatalf("Round %d: decoder made no progress after %d calls", i, calls)
			}
			before := buf.Len()
			p, err := dec.Decode(&buf)
			if p == nil && err == nil {
				break
			}
			if buf.Len() >= before {
				t.Fatalf("Round %d: buffer grew from %d to %d during decode", i, before, buf.Len())
			}
		}
	}
}

// TestFuzzDecoder_PacketInNoise embeds a valid random packet between
// stretches of sync-free noise and verifies it is always recovered intact
func TestFuzzDecoder_PacketInNoise(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		want := randomPacket(rng)

		var buf bytes.Buffer
		buf.Write(randomNoise(rng, rng.Intn(100)))
		buf.Write(validWire(want))
		buf.Write(randomNoise(rng, rng.Intn(100)))

		packets, crcErrors := drain(t, &buf)
		if crcErrors != 0 {
			t.Errorf("Round %d: %d CRC errors in clean stream", i, crcErrors)
			continue
		}
		if len(packets) != 1 {
			t.Errorf("Round %d: recovered %d packets, want 1", i, len(packets))
			continue
		}
		if *packets[0] != *want {
			t.Errorf("Round %d: packet fields corrupted in transit:\n got %+v\nwant %+v", i, packets[0], want)
		}
	}
}

// TestFuzzDecoder_RandomPacketRoundTrip decodes randomly generated
// packets straight off their own wire image
func TestFuzzDecoder_RandomPacketRoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	var dec Decoder
	for i := 0; i < rounds; i++ {
		want := randomPacket(rng)
		var buf bytes.Buffer
		buf.Write(validWire(want))

		got, err := dec.Decode(&buf)
		if err != nil {
			t.Errorf("Round %d: unexpected decode error: %v", i, err)
			continue
		}
		if got == nil {
			t.Errorf("Round %d: expected packet, got nil", i)
			continue
		}
		if *got != *want {
			t.Errorf("Round %d: decoded fields differ:\n got %+v\nwant %+v", i, got, want)
		}
	}
}

// TestFuzzDecoder_SingleCorruption flips one random byte of a valid
// packet and verifies the decoder neither panics nor emits more than
// one packet, and always leaves the buffer drained of candidates
func TestFuzzDecoder_SingleCorruption(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	var dec Decoder
	for i := 0; i < rounds; i++ {
		wire := validWire(randomPacket(rng))
		pos := rng.Intn(PacketSize)
		flip := byte(rng.Intn(255) + 1) // never zero, so the byte changes
		wire[pos] ^= flip

		var buf bytes.Buffer
		buf.Write(wire)

		packets := 0
		for calls := 0; ; calls++ {
			if calls > PacketSize+1 {
				t.Fatalf("Round %d: no progress after corruption at %d", i, pos)
			}
			p, err := dec.Decode(&buf)
			if p != nil {
				packets++
				continue
			}
			if err == nil {
				break
			}
			var crcErr *CRCError
			if !errors.As(err, &crcErr) {
				t.Fatalf("Round %d: unexpected error type: %v", i, err)
			}
		}
		if packets > 1 {
			t.Errorf("Round %d: %d packets out of one corrupted image", i, packets)
		}
	}
}

// ============================================================
// Interpolation Fuzz Tests
// ============================================================

// TestFuzzAngles_InvariantsHold checks the interpolation contract over
// random packets: 12 pairs, first angle equals the start angle, all
// angles normalized
func TestFuzzAngles_InvariantsHold(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := randomPacket(rng)

		if d := p.DeltaAngleDeg(); d < 0 || d > 180 {
			t.Fatalf("Round %d: DeltaAngleDeg = %v outside [0,180]", i, d)
		}

		n := 0
		for angle := range p.Angles() {
			if n == 0 && angle != p.StartAngleDeg() {
				t.Fatalf("Round %d: first angle %v != start %v", i, angle, p.StartAngleDeg())
			}
			if angle < 0 || angle >= 360 {
				t.Fatalf("Round %d: angle %d = %v outside [0,360)", i, n, angle)
			}
			n++
		}
		if n != PointsPerPacket {
			t.Fatalf("Round %d: yielded %d pairs, want %d", i, n, PointsPerPacket)
		}
	}
}
