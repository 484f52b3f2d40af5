// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"time"
)

// Point is one laser sample within a packet.
type Point struct {
	Distance  uint16 // millimeters
	Intensity uint8  // return strength, 0-255
}

// DistanceMeters returns the measured range in meters.
func (pt Point) DistanceMeters() float64 {
	return float64(pt.Distance) * 1e-3
}

// NormalizedIntensity returns the return strength scaled to [0, 1].
func (pt Point) NormalizedIntensity() float64 {
	return float64(pt.Intensity) / 255.0
}

// Packet is one decoded scan burst: 12 consecutive laser samples plus
// rotation metadata. The leading sync byte is implied and not stored.
// A Packet is built fresh from validated bytes on every decode and
// keeps no reference to the stream buffer.
type Packet struct {
	VerLen     uint8  // protocol tag, nominally 0x2C; not interpreted
	Speed      uint16 // rotational speed, degrees per second
	StartAngle uint16 // azimuth of the first point, hundredths of a degree
	Points     [PointsPerPacket]Point
	EndAngle   uint16 // azimuth of the last point, hundredths of a degree
	Timestamp  uint16 // sensor-local milliseconds, wraps
	CRC        uint8  // checksum carried on the wire
}

// UnmarshalBinary decodes a full 47-byte wire image into p. Fields are
// read at fixed offsets, little-endian. Beyond the length requirement
// no validation happens here; integrity is the checksum's job and the
// stream decoder has already done it by the time it calls this.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != PacketSize {
		return fmt.Errorf("invalid packet length %d, want %d", len(data), PacketSize)
	}
	p.VerLen = data[offVerLen]
	p.Speed = binary.LittleEndian.Uint16(data[offSpeed:])
	p.StartAngle = binary.LittleEndian.Uint16(data[offStartAngle:])
	for i := range p.Points {
		base := offPoints + i*pointStride
		p.Points[i] = Point{
			Distance:  binary.LittleEndian.Uint16(data[base:]),
			Intensity: data[base+2],
		}
	}
	p.EndAngle = binary.LittleEndian.Uint16(data[offEndAngle:])
	p.Timestamp = binary.LittleEndian.Uint16(data[offTimestamp:])
	p.CRC = data[offCRC]
	return nil
}

// StartAngleDeg returns the azimuth of the first point in degrees.
func (p *Packet) StartAngleDeg() float64 {
	return float64(p.StartAngle) / angleScale
}

// EndAngleDeg returns the azimuth of the last point in degrees.
func (p *Packet) EndAngleDeg() float64 {
	return float64(p.EndAngle) / angleScale
}

// DeltaAngleDeg returns the shorter arc between the first and last
// point, always in [0, 180]. The burst may cross 0 degrees.
func (p *Packet) DeltaAngleDeg() float64 {
	d := math.Mod(math.Abs(p.EndAngleDeg()-p.StartAngleDeg()), 360)
	if d > 180 {
		return 360 - d
	}
	return d
}

// Duration returns the sensor-local timestamp as a duration. The clock
// is 16-bit and wraps; only differences between nearby packets mean
// anything.
func (p *Packet) Duration() time.Duration {
	return time.Duration(p.Timestamp) * time.Millisecond
}

// RotationHz returns the spin rate implied by the speed field.
func (p *Packet) RotationHz() float64 {
	return float64(p.Speed) / 360.0
}

// Angles returns the per-point azimuths as a sequence of
// (degrees, Point) pairs. Only the start and end angles travel on the
// wire, so the 12 points are spread linearly across the arc: the step
// is DeltaAngleDeg()/11 and the first pair's angle is exactly
// StartAngleDeg(). Angles are normalized to [0, 360). Each range over
// the sequence restarts from the first point.
func (p *Packet) Angles() iter.Seq2[float64, Point] {
	start := p.StartAngleDeg()
	step := p.DeltaAngleDeg() / float64(PointsPerPacket-1)
	return func(yield func(float64, Point) bool) {
		for i, pt := range p.Points {
			if !yield(math.Mod(start+float64(i)*step, 360), pt) {
				return
			}
		}
	}
}

// PointXY converts an interpolated sample to sensor-frame cartesian
// coordinates in meters. +y is the sensor's forward axis, +x its
// right; azimuth grows clockwise viewed from above.
func PointXY(angleDeg float64, pt Point) (x, y float64) {
	rad := angleDeg * math.Pi / 180
	d := pt.DistanceMeters()
	return math.Sin(rad) * d, math.Cos(rad) * d
}
