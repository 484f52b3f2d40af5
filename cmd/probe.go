// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a valid lidar packet",
	Long: `Wait for a CRC-valid LD19 packet on the connection until timeout.

This command connects to a serial port or WebSocket and waits for a
complete packet passing the CRC check. Garbage bytes and corrupted
packets are skipped and counted.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking wiring, baud rate and bridge connectivity.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Azimuth - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid LD19 packet...\n\n")

	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	buf := make([]byte, 256)

	// Channel for packet reception
	packetChan := make(chan *ld19.Packet, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		crcErrors := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			stream.Write(buf[:n])

			for {
				packet, decodeErr := decoder.Decode(stream)
				if decodeErr != nil {
					// Keep hunting, just count failed candidates
					crcErrors++
					continue
				}
				if packet == nil {
					break
				}
				// Got a valid packet!
				if crcErrors > 0 {
					fmt.Printf("(skipped %d corrupted candidates before sync)\n", crcErrors)
				}
				packetChan <- packet
				return
			}
		}
	}()

	// Wait for packet or timeout
	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Speed: %d deg/s (%.1f Hz)\n", packet.Speed, packet.RotationHz())
		fmt.Printf("  Angles: %.2f -> %.2f deg (delta %.2f)\n",
			packet.StartAngleDeg(), packet.EndAngleDeg(), packet.DeltaAngleDeg())
		fmt.Printf("  Timestamp: %d ms\n", packet.Timestamp)
		fmt.Printf("  CRC: 0x%02X\n", packet.CRC)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
