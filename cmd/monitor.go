// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var (
	monitorShowAll  bool
	monitorInterval int
	monitorUseTUI   bool
	monitorValidate bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Detect and analyze stream errors and anomalous packets",
	Long: `Track CRC failures, sync losses and anomalous field values with statistics.

This command decodes the stream and reports:
  - CRC errors and one-byte resynchronizations
  - Sync losses (bytes discarded hunting for the sync byte)
  - With --validate: implausible field values on CRC-valid packets
    (unexpected ver_len, speed out of range, angles out of range,
    all-zero returns)
  - Rates and trends (packet rate, error rate, rotation rate)

By default, only errors are displayed. Use --show-all to display valid
packets too. Decode errors before the first valid packet are treated as
startup garbage and only counted.

Runs as a full-screen dashboard unless --tui=false selects plain text
with periodic statistics summaries.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Show all packets (not just errors)")
	monitorCmd.Flags().IntVar(&monitorInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&monitorUseTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().BoolVar(&monitorValidate, "validate", false, "Report plausibility warnings on valid packets")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if monitorUseTUI {
		return runMonitorTUI(conn, connInfo)
	}
	return runMonitorText(conn, connInfo)
}

// printCRCError prints a checksum failure in highlighted format
func printCRCError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mCRC ERROR:\033[0m %v\n", timestamp, err)
}

// printSyncLoss prints a resynchronization event
func printSyncLoss(dropped int) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mSYNC LOSS:\033[0m discarded %d bytes without a sync byte\n", timestamp, dropped)
}

// printValidationFindings prints plausibility findings for a packet
func printValidationFindings(p *ld19.Packet, findings []ld19.ValidationError) {
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m packet t=%dms\n", timestamp, p.Timestamp)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range findings {
		switch err.Type {
		case ld19.AnomalyUnexpectedVerLen:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case ld19.AnomalySpeedRange:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if speed, ok := err.Details["speed"].(uint16); ok {
				fmt.Printf("    speed=%d deg/s (%.1f Hz)\n", speed, float64(speed)/360)
			}

		case ld19.AnomalyAngleRange:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if start, ok := err.Details["start_angle"].(uint16); ok {
				if end, ok := err.Details["end_angle"].(uint16); ok {
					fmt.Printf("    start=%d end=%d (hundredths of a degree)\n", start, end)
				}
			}

		case ld19.AnomalyNoReturns:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  %s\n\n", ld19.FormatPacket(p, ld19.FormatSummary))
}

// runMonitorTUI runs the monitor as a full-screen dashboard
func runMonitorTUI(conn Connection, connInfo string) error {
	m := initialMonitorModel(connInfo, monitorShowAll, monitorValidate)
	p := tea.NewProgram(m)

	// Reader goroutine, batched to the TUI at a fixed rate
	go streamReaderLoop(conn, p, monitorValidate)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// streamReaderLoop decodes the stream and feeds a TUI program.
// Packets arrive around 375/s, far too fast for one Send each, so
// events are batched on a 50ms tick. Shared by the monitor and tui
// dashboards.
func streamReaderLoop(conn Connection, p *tea.Program, validate bool) {
	var decoder ld19.Decoder
	stream := &bytes.Buffer{}
	synchronized := false
	invalidBytesBeforeSync := 0

	batchChan := make(chan streamDataMsg, 256)
	syncChan := make(chan streamSyncMsg, 1)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}
			stream.Write(buf[:n])
			select {
			case batchChan <- streamDataMsg{bytesRead: n}:
			default:
			}

			for {
				before := stream.Len()
				packet, decodeErr := decoder.Decode(stream)

				if decodeErr != nil {
					if synchronized {
						select {
						case batchChan <- streamDataMsg{decodeErr: decodeErr}:
						default:
						}
					} else {
						invalidBytesBeforeSync++
					}
					continue
				}

				if packet == nil {
					if dropped := before - stream.Len(); dropped > 0 {
						if synchronized {
							select {
							case batchChan <- streamDataMsg{droppedBytes: dropped}:
							default:
							}
						} else {
							invalidBytesBeforeSync += dropped
						}
					}
					break
				}

				if !synchronized {
					synchronized = true
					select {
					case syncChan <- streamSyncMsg{invalidBytes: invalidBytesBeforeSync}:
					default:
					}
				}

				var findings []ld19.ValidationError
				if validate {
					findings = ld19.ValidatePacket(packet)
				}
				select {
				case batchChan <- streamDataMsg{packet: packet, findings: findings}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-ticker.C:
			var batch streamBatchMsg

			select {
			case sync := <-syncChan:
				batch.syncMsg = &sync
			default:
			}

		drainLoop:
			for {
				select {
				case msg := <-batchChan:
					batch.messages = append(batch.messages, msg)
				default:
					break drainLoop
				}
			}

			if batch.syncMsg != nil || len(batch.messages) > 0 {
				p.Send(batch)
			}
		}
	}
}

// runMonitorText runs the monitor in plain text mode
func runMonitorText(conn Connection, connInfo string) error {
	fmt.Printf("Azimuth - Stream Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", monitorInterval)
	if monitorShowAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var decoder ld19.Decoder
	stats := ld19.NewStatistics()
	stream := &bytes.Buffer{}
	buf := make([]byte, 256)

	// Sync tracking - ignore decode errors until first valid packet
	synchronized := false
	invalidBytesBeforeSync := 0

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(monitorInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	serialBuf := make(chan []byte, 10)
	go func() {
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					close(serialBuf)
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			serialBuf <- data
		}
	}()

	for {
		select {
		case data, ok := <-serialBuf:
			if !ok {
				fmt.Println("\nConnection closed")
				fmt.Print(stats.String())
				return nil
			}
			stream.Write(data)
			stats.RecordBytes(len(data))

			for {
				before := stream.Len()
				packet, decodeErr := decoder.Decode(stream)

				if decodeErr != nil {
					if synchronized {
						stats.RecordCRCError()
						var crcErr *ld19.CRCError
						if errors.As(decodeErr, &crcErr) {
							printCRCError(decodeErr)
						}
					} else {
						invalidBytesBeforeSync++
					}
					continue
				}

				if packet == nil {
					if dropped := before - stream.Len(); dropped > 0 {
						if synchronized {
							stats.RecordSyncLoss(dropped)
							printSyncLoss(dropped)
						} else {
							invalidBytesBeforeSync += dropped
						}
					}
					break
				}

				if !synchronized {
					synchronized = true
					if invalidBytesBeforeSync > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytesBeforeSync)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				stats.Update(packet)

				if monitorValidate {
					if findings := ld19.ValidatePacket(packet); len(findings) > 0 {
						printValidationFindings(packet, findings)
						continue
					}
				}
				if monitorShowAll {
					fmt.Println(ld19.FormatPacket(packet, ld19.FormatSummary))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
