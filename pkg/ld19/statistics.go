// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"fmt"
	"time"
)

// rollingAverage smooths a noisy per-packet series over a fixed window.
type rollingAverage struct {
	index int
	n     int
	hist  [8]float64
}

func (r *rollingAverage) push(v float64) {
	r.hist[r.index] = v
	r.index = (r.index + 1) % len(r.hist)
	if r.n < len(r.hist) {
		r.n++
	}
}

func (r *rollingAverage) mean() float64 {
	if r.n == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.hist[:r.n] {
		sum += v
	}
	return sum / float64(r.n)
}

// Statistics accumulates stream health over one decoding session. All
// methods must be called from the goroutine that owns the decode loop;
// TUI consumers receive values through messages, not shared access.
type Statistics struct {
	StartTime time.Time

	// Counters
	TotalPackets  uint64
	CRCErrors     uint64
	Rotations     uint64
	BytesRead     uint64
	SyncLosses    uint64
	SyncLossBytes uint64

	// Last decoded packet's raw fields of general interest
	LastSpeed     uint16
	LastTimestamp uint16

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // CRC errors/sec

	lastStartAngle float64
	lastRotation   time.Time

	angularResolution rollingAverage
	rotationRate      rollingAverage
	sampleRate        rollingAverage
	minDistance       rollingAverage
	maxDistance       rollingAverage
}

// NewStatistics creates a statistics tracker with the clock started
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Update folds one decoded packet into the counters and the smoothed
// series. A completed rotation is recognized when the azimuth wraps:
// the previous packet's start angle is greater than this one's.
func (s *Statistics) Update(p *Packet) {
	s.TotalPackets++
	s.LastSpeed = p.Speed
	s.LastTimestamp = p.Timestamp

	s.angularResolution.push(p.DeltaAngleDeg() / (PointsPerPacket - 1))

	if s.lastStartAngle > p.StartAngleDeg() {
		now := time.Now()
		if !s.lastRotation.IsZero() {
			dt := now.Sub(s.lastRotation).Seconds()
			if dt > 0 {
				perPoint := p.DeltaAngleDeg() / (PointsPerPacket - 1)
				s.rotationRate.push(1 / dt)
				if perPoint > 0 {
					s.sampleRate.push((1 / dt) * (360 / perPoint))
				}
			}
		}
		s.lastRotation = now
		s.Rotations++
	}
	s.lastStartAngle = p.StartAngleDeg()

	minD, maxD := p.Points[0].DistanceMeters(), p.Points[0].DistanceMeters()
	for _, pt := range p.Points[1:] {
		d := pt.DistanceMeters()
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	s.minDistance.push(minD)
	s.maxDistance.push(maxD)
}

// RecordCRCError counts one checksum failure
func (s *Statistics) RecordCRCError() {
	s.CRCErrors++
}

// RecordBytes counts raw bytes taken from the transport
func (s *Statistics) RecordBytes(n int) {
	s.BytesRead += uint64(n)
}

// RecordSyncLoss counts one resynchronization event and the n bytes
// discarded while hunting for the next sync byte.
func (s *Statistics) RecordSyncLoss(n int) {
	s.SyncLosses++
	s.SyncLossBytes += uint64(n)
}

// Smoothed readings over the rolling window

// AngularResolutionDeg returns the smoothed spacing between adjacent
// points in degrees.
func (s *Statistics) AngularResolutionDeg() float64 { return s.angularResolution.mean() }

// RotationRateHz returns the smoothed measured spin rate. This comes
// from observed azimuth wraps, not from the packet speed field.
func (s *Statistics) RotationRateHz() float64 { return s.rotationRate.mean() }

// SampleRateHz returns the smoothed measured sample throughput in
// points per second.
func (s *Statistics) SampleRateHz() float64 { return s.sampleRate.mean() }

// MinDistanceM returns the smoothed per-packet minimum range in meters.
func (s *Statistics) MinDistanceM() float64 { return s.minDistance.mean() }

// MaxDistanceM returns the smoothed per-packet maximum range in meters.
func (s *Statistics) MaxDistanceM() float64 { return s.maxDistance.mean() }

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.CRCErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var crcPercent float64
	if total := s.TotalPackets + s.CRCErrors; total > 0 {
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(total)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Packets:         %8d\n", s.TotalPackets)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	if s.Rotations > 0 {
		result += fmt.Sprintf("Rotations:       %8d\n", s.Rotations)
		result += fmt.Sprintf("Rotation Rate:   %8.1f Hz\n", s.RotationRateHz())
		result += fmt.Sprintf("Sample Rate:     %8.1f kHz\n", s.SampleRateHz()*1e-3)
	}
	result += fmt.Sprintf("Angular Res:     %8.2f deg/point\n", s.AngularResolutionDeg())
	result += fmt.Sprintf("Distance Window: %.2f - %.2f m\n", s.MinDistanceM(), s.MaxDistanceM())
	if s.SyncLosses > 0 {
		result += fmt.Sprintf("Sync Losses:     %8d (%d bytes)\n", s.SyncLosses, s.SyncLossBytes)
	}
	if s.BytesRead > 0 {
		result += fmt.Sprintf("Bytes Read:      %8d\n", s.BytesRead)
	}
	result += "================================\n"

	return result
}

// Reset resets all statistics counters and restarts the clock
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
