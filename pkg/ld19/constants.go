// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

// Package ld19 provides a streaming decoder for the LDROBOT LD19 family
// of 2D spinning lidar sensors.
//
// The sensor emits fixed 47-byte packets over a 230400 baud serial link
// with no framing beyond a single sync byte. This package provides
// sync-byte search with CRC-8 validation and one-byte resynchronization,
// fixed-layout little-endian decoding, per-point angular interpolation,
// and stream statistics.
package ld19

// Wire framing
const (
	SyncByte   = 0x54 // first byte of every packet
	PacketSize = 47   // total length including sync byte and CRC

	PointsPerPacket = 12
)

// Field offsets within a packet, relative to the sync byte. All
// multi-byte fields are little-endian.
const (
	offVerLen     = 1
	offSpeed      = 2
	offStartAngle = 4
	offPoints     = 6
	offEndAngle   = 42
	offTimestamp  = 44
	offCRC        = 46

	pointStride = 3 // u16 distance + u8 intensity
)

// Serial link parameters. The sensor's rate is fixed: 230400 baud,
// 8 data bits, no parity, one stop bit, no flow control.
const (
	DefaultBaudRate = 230400
)

// SamplesPerSecond is the sensor's fixed measurement rate, independent
// of rotation speed. It sets the nominal wire rate:
// 4500/12 packets/s at 47 bytes each.
const SamplesPerSecond = 4500

// Angle fields carry hundredths of a degree in [0, 36000).
const (
	angleScale  = 100
	maxAngleRaw = 36000
)

// Nominal values used by Validate for plausibility warnings. The
// decoder itself never checks these.
const (
	VerLenNominal = 0x2C // upper 3 bits version (1), lower 5 point count (12)

	minPlausibleSpeed = 500  // deg/s, ~1.4 Hz
	maxPlausibleSpeed = 6000 // deg/s, ~16.7 Hz
)
