// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import (
	"fmt"
	"strings"
)

// Format names accepted by FormatPacket
const (
	FormatSummary = "summary"
	FormatPoints  = "points"
	FormatCSV     = "csv"
	FormatHex     = "hex"
)

// FormatPacket renders p in the named format: one summary line, a
// block with one line per interpolated point, CSV rows
// (angle_deg,distance_m,intensity), or the spaced-hex wire image.
// Unknown names fall back to the summary form.
func FormatPacket(p *Packet, format string) string {
	switch format {
	case FormatPoints:
		return formatPoints(p)
	case FormatCSV:
		return formatCSV(p)
	case FormatHex:
		wire, _ := p.MarshalBinary()
		return fmt.Sprintf("% X", wire)
	default:
		return formatSummary(p)
	}
}

func formatSummary(p *Packet) string {
	return fmt.Sprintf("speed=%4ddeg/s start=%7.2fdeg end=%7.2fdeg delta=%6.2fdeg t=%5dms",
		p.Speed, p.StartAngleDeg(), p.EndAngleDeg(), p.DeltaAngleDeg(), p.Timestamp)
}

func formatPoints(p *Packet) string {
	var b strings.Builder
	b.WriteString(formatSummary(p))
	i := 0
	for angle, pt := range p.Angles() {
		fmt.Fprintf(&b, "\n  [%2d] angle=%7.2fdeg dist=%6.3fm intensity=%.2f",
			i, angle, pt.DistanceMeters(), pt.NormalizedIntensity())
		i++
	}
	return b.String()
}

func formatCSV(p *Packet) string {
	var b strings.Builder
	first := true
	for angle, pt := range p.Angles() {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		fmt.Fprintf(&b, "%.2f,%.3f,%.3f", angle, pt.DistanceMeters(), pt.NormalizedIntensity())
	}
	return b.String()
}
