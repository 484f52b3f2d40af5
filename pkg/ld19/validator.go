// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package ld19

import "fmt"

// AnomalyType classifies plausibility findings on CRC-valid packets
type AnomalyType int

const (
	AnomalyUnexpectedVerLen AnomalyType = iota
	AnomalySpeedRange
	AnomalyAngleRange
	AnomalyNoReturns
)

// ValidationError describes one plausibility finding
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket inspects a CRC-valid packet for field values a healthy
// sensor does not produce. The stream decoder never applies these
// checks; a packet that passes its checksum is always emitted. This is
// diagnostics for the monitor tooling, not gatekeeping.
// Returns a slice of findings (empty if the packet looks plausible).
func ValidatePacket(p *Packet) []ValidationError {
	errors := []ValidationError{}

	if p.VerLen != VerLenNominal {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnexpectedVerLen,
			Message: fmt.Sprintf("Unexpected ver_len 0x%02X (nominal 0x%02X)", p.VerLen, VerLenNominal),
			Details: map[string]interface{}{"ver_len": p.VerLen, "nominal": uint8(VerLenNominal)},
		})
	}

	if p.Speed < minPlausibleSpeed || p.Speed > maxPlausibleSpeed {
		errors = append(errors, ValidationError{
			Type:    AnomalySpeedRange,
			Message: fmt.Sprintf("Speed %d deg/s outside plausible range %d-%d", p.Speed, minPlausibleSpeed, maxPlausibleSpeed),
			Details: map[string]interface{}{"speed": p.Speed, "min": minPlausibleSpeed, "max": maxPlausibleSpeed},
		})
	}

	if p.StartAngle >= maxAngleRaw || p.EndAngle >= maxAngleRaw {
		errors = append(errors, ValidationError{
			Type:    AnomalyAngleRange,
			Message: fmt.Sprintf("Angle out of range (start=%d end=%d, valid 0-%d)", p.StartAngle, p.EndAngle, maxAngleRaw-1),
			Details: map[string]interface{}{"start_angle": p.StartAngle, "end_angle": p.EndAngle, "max": maxAngleRaw - 1},
		})
	}

	zero := true
	for _, pt := range p.Points {
		if pt.Distance != 0 {
			zero = false
			break
		}
	}
	if zero {
		errors = append(errors, ValidationError{
			Type:    AnomalyNoReturns,
			Message: "All 12 distances are zero (blocked or failing optics)",
			Details: map[string]interface{}{"points": PointsPerPacket},
		})
	}

	return errors
}
