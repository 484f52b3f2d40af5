// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "azimuth",
	Short: "LD19 Lidar Stream Analyzer",
	Long: `Azimuth - A CLI tool for decoding, monitoring and visualizing the byte
stream of LDROBOT LD19-family 2D spinning lidars.

Provides packet logging, error monitoring, live terminal dashboards, a
polar scatter view, stream capture/replay and offline analysis.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 230400]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the AZIMUTH_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.2.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", ld19.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
