// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics
//
// Azimuth - LD19 Lidar Stream Analyzer
//
// A CLI tool for decoding, monitoring and visualizing the byte stream
// of LDROBOT LD19-family 2D spinning lidars.

package main

import (
	"os"

	"github.com/calyptra/azimuth/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
