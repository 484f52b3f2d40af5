// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var conntestCmd = &cobra.Command{
	Use:   "conntest",
	Short: "Test raw connection stability and throughput",
	Long: `Soak-test the connection without decoding packets.

This command connects and measures the raw byte rate for the test
duration, comparing it against the sensor's nominal wire rate
(4500 samples/s packed 12 to a 47-byte packet, about 17.6 KB/s).
A healthy link carries at least half the nominal rate; sustained
shortfall points at baud mismatch, cabling or bridge problems.

Exit codes:
  0 - Byte rate within the expected window
  1 - Link up but rate too low
  2 - Connection error`,
	RunE: runConntest,
}

var conntestDuration int

func init() {
	rootCmd.AddCommand(conntestCmd)
	conntestCmd.Flags().IntVar(&conntestDuration, "duration", 10, "Test duration in seconds")
}

func runConntest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	nominal := float64(ld19.SamplesPerSecond) / ld19.PointsPerPacket * ld19.PacketSize

	fmt.Printf("Azimuth - Connection Throughput Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n", conntestDuration)
	fmt.Printf("Nominal rate: %.0f bytes/sec\n\n", nominal)

	// Start a goroutine to read from the connection
	readChan := make(chan int, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				readChan <- n
			}
		}
	}()

	// Run for the specified duration
	start := time.Now()
	endTime := start.Add(time.Duration(conntestDuration) * time.Second)
	bytesReceived := 0
	reads := 0
	lastTick := start
	bytesAtTick := 0

	// Per-second rate ticker
	rateTicker := time.NewTicker(1 * time.Second)
	defer rateTicker.Stop()

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case n := <-readChan:
			bytesReceived += n
			reads++

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			fmt.Printf("\n--- Test Results ---\n")
			fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("Reads: %d\n", reads)
			fmt.Printf("Bytes received: %d\n", bytesReceived)
			fmt.Printf("Result: FAILED (connection error)\n")
			os.Exit(1)

		case now := <-rateTicker.C:
			rate := float64(bytesReceived-bytesAtTick) / now.Sub(lastTick).Seconds()
			fmt.Printf("[%s] %.0f bytes/sec (%.0f%% of nominal, %.0fs remaining)\n",
				now.Format("15:04:05.000"), rate, rate*100/nominal,
				time.Until(endTime).Seconds())
			lastTick = now
			bytesAtTick = bytesReceived
		}
	}

	elapsed := time.Since(start).Seconds()
	rate := float64(bytesReceived) / elapsed

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %d seconds\n", conntestDuration)
	fmt.Printf("Reads: %d\n", reads)
	fmt.Printf("Bytes received: %d\n", bytesReceived)
	fmt.Printf("Average rate: %.0f bytes/sec (%.0f%% of nominal)\n", rate, rate*100/nominal)

	if rate < nominal/2 {
		fmt.Printf("Result: FAILED (rate below 50%% of nominal)\n")
		os.Exit(1)
	}

	fmt.Printf("Result: PASSED (link healthy)\n")
	return nil
}
