// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"encoding/binary"
	"math"
)

// AppendPacket appends p's 47-byte wire image to dst and returns the
// extended slice. The checksum is computed fresh over the emitted
// bytes, so the result always validates regardless of p.CRC.
func AppendPacket(dst []byte, p *Packet) []byte {
	start := len(dst)
	dst = append(dst, SyncByte, p.VerLen)
	dst = binary.LittleEndian.AppendUint16(dst, p.Speed)
	dst = binary.LittleEndian.AppendUint16(dst, p.StartAngle)
	for _, pt := range p.Points {
		dst = binary.LittleEndian.AppendUint16(dst, pt.Distance)
		dst = append(dst, pt.Intensity)
	}
	dst = binary.LittleEndian.AppendUint16(dst, p.EndAngle)
	dst = binary.LittleEndian.AppendUint16(dst, p.Timestamp)
	return append(dst, Checksum(dst[start:]))
}

// MarshalBinary returns p's wire image with a freshly computed
// checksum. For a packet that came out of Decode this reproduces the
// received bytes exactly.
func (p *Packet) MarshalBinary() ([]byte, error) {
	return AppendPacket(make([]byte, 0, PacketSize), p), nil
}

// ScanSource generates a deterministic synthetic packet stream shaped
// like a healthy sensor in a round room: constant rotation speed,
// smoothly advancing azimuth, gentle range ripple. It exists so replay
// and bench rigs can run without hardware.
type ScanSource struct {
	speed  uint16
	verLen uint8
	baseMM float64

	angle   float64
	clockMS float64
}

// NewScanSource returns a generator spinning at speed degrees per
// second around a wall baseDistanceMM away. Each Next call yields the
// following packet of the sweep.
func NewScanSource(speed uint16, baseDistanceMM uint16) *ScanSource {
	return &ScanSource{
		speed:  speed,
		verLen: VerLenNominal,
		baseMM: float64(baseDistanceMM),
	}
}

// Next builds the next packet in the sweep.
func (s *ScanSource) Next() *Packet {
	// 12 points at the fixed sample rate set both the angular span of
	// one packet and its duration.
	perPoint := float64(s.speed) / SamplesPerSecond
	p := &Packet{
		VerLen:     s.verLen,
		Speed:      s.speed,
		StartAngle: rawAngle(s.angle),
		EndAngle:   rawAngle(s.angle + perPoint*(PointsPerPacket-1)),
		Timestamp:  uint16(s.clockMS),
	}
	for i := range p.Points {
		a := (s.angle + perPoint*float64(i)) * math.Pi / 180
		// slightly elliptical room so distances vary with azimuth
		d := s.baseMM * (1 + 0.15*math.Sin(2*a))
		p.Points[i] = Point{Distance: uint16(d), Intensity: 200}
	}
	s.angle = math.Mod(s.angle+perPoint*PointsPerPacket, 360)
	// float constant arithmetic: the integer quotient would truncate
	// 12/4500 s to a flat 2 ms and run the clock slow
	s.clockMS += 1000.0 * PointsPerPacket / SamplesPerSecond
	if s.clockMS >= 65536 {
		s.clockMS -= 65536
	}
	p.CRC = Checksum(AppendPacket(make([]byte, 0, PacketSize), p)[:offCRC])
	return p
}

// NextWire is Next followed by AppendPacket, for callers that feed a
// byte stream instead of packets.
func (s *ScanSource) NextWire(dst []byte) []byte {
	return AppendPacket(dst, s.Next())
}

func rawAngle(deg float64) uint16 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	return uint16(math.Round(r*angleScale)) % maxAngleRaw
}
