// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	packetsFormat     string
	packetsCount      int
	packetsErrorsOnly bool
)

var packetsCmd = &cobra.Command{
	Use:   "packets",
	Short: "Decode and print lidar packets as they arrive",
	Long: `Continuously decode and display LD19 packets from the connection.

Formats:
  summary  one line per packet (speed, angles, timestamp)
  points   summary plus all 12 interpolated points
  csv      angle,distance_m,intensity rows
  hex      raw 47-byte wire image

With --errors-only, valid packets are suppressed and only CRC failures
are printed. With --count N, exits after N packets.

Supports both serial and WebSocket connections.`,
	RunE: runPackets,
}

func init() {
	rootCmd.AddCommand(packetsCmd)
	packetsCmd.Flags().StringVar(&packetsFormat, "format", ld19.FormatSummary, "Output format: summary, points, csv, hex")
	packetsCmd.Flags().IntVar(&packetsCount, "count", 0, "Stop after this many packets (0 = unlimited)")
	packetsCmd.Flags().BoolVar(&packetsErrorsOnly, "errors-only", false, "Print only CRC failures")
}

func runPackets(cmd *cobra.Command, args []string) error {
	switch packetsFormat {
	case ld19.FormatSummary, ld19.FormatPoints, ld19.FormatCSV, ld19.FormatHex:
	default:
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", packetsFormat)
		os.Exit(2)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Azimuth - Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	buf := make([]byte, 256)
	printed := 0

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}
		stream.Write(buf[:n])

		for {
			packet, err := decoder.Decode(stream)
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet == nil {
				break
			}
			if !packetsErrorsOnly {
				fmt.Println(ld19.FormatPacket(packet, packetsFormat))
			}
			printed++
			if packetsCount > 0 && printed >= packetsCount {
				return nil
			}
		}
	}
}
