// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/capture"
	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	recordOutput   string
	recordDuration int
	recordNotes    string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the raw stream to a capture file",
	Long: `Record the transport byte stream to a capture file for later
replay and analysis.

The stream is stored exactly as it arrived, so a capture preserves CRC
errors and sync losses. Packets are decoded on the side only to show
live counters while recording.

With --duration 0 the recording runs until Ctrl-C.

Exit codes:
  0 - Recording written
  2 - Connection error`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Capture file to write (required)")
	recordCmd.Flags().IntVarP(&recordDuration, "duration", "d", 0, "Recording duration in seconds, 0 for unlimited")
	recordCmd.Flags().StringVar(&recordNotes, "notes", "", "Free-form note stored in the capture header")
	recordCmd.MarkFlagRequired("output")
}

func runRecord(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	f, err := os.Create(recordOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", recordOutput, err)
	}
	defer f.Close()

	header := capture.Header{Source: connInfo, Notes: recordNotes}
	if wsURL == "" {
		header.BaudRate = baudRate
	}
	cw, err := capture.NewWriter(f, header)
	if err != nil {
		return err
	}

	fmt.Printf("Recording %s to %s", connInfo, recordOutput)
	if recordDuration > 0 {
		fmt.Printf(" for %d seconds", recordDuration)
	} else {
		fmt.Print(" until Ctrl-C")
	}
	fmt.Println()

	dataChan := make(chan []byte, 64)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				dataChan <- data
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(time.Duration(recordDuration) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Side decode for the live counters; the capture gets the raw bytes.
	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	stats := ld19.NewStatistics()
	start := time.Now()

	writeChunk := func(data []byte) error {
		if _, err := cw.Write(data); err != nil {
			return fmt.Errorf("failed to write capture: %w", err)
		}
		stats.RecordBytes(len(data))
		stream.Write(data)
		for {
			packet, decodeErr := decoder.Decode(stream)
			if decodeErr != nil {
				stats.RecordCRCError()
				continue
			}
			if packet == nil {
				break
			}
			stats.Update(packet)
		}
		return nil
	}

	running := true
	for running {
		select {
		case data := <-dataChan:
			if err := writeChunk(data); err != nil {
				return err
			}
		case err := <-errChan:
			if err == ErrConnectionClosed {
				fmt.Println("Connection closed")
				running = false
				break
			}
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		case <-ticker.C:
			fmt.Printf("  %4.0fs  %8d packets  %10d bytes",
				time.Since(start).Seconds(), stats.TotalPackets, cw.BytesWritten())
			if stats.CRCErrors > 0 {
				fmt.Printf("  %d CRC errors", stats.CRCErrors)
			}
			fmt.Println()
		case <-timeout:
			running = false
		case <-sigChan:
			fmt.Println("Interrupted")
			running = false
		}
	}

	// Flush whatever the reader already handed over
drain:
	for {
		select {
		case data := <-dataChan:
			if err := writeChunk(data); err != nil {
				return err
			}
		default:
			break drain
		}
	}

	fmt.Println()
	fmt.Printf("Wrote %d bytes to %s\n", cw.BytesWritten(), recordOutput)
	fmt.Print(stats.String())
	return nil
}
