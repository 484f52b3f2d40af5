// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Live polar scatter view of the scan",
	Long: `Render the scan as a polar scatter plot on a braille-dot canvas.

Each completed rotation replaces the displayed sweep, so the picture
follows the room in real time. The sensor sits at the center, forward
is up.

Keys:
  + / -    raise/lower the intensity display threshold
  [ / ]    zoom in/out (range window)
  r        reset statistics
  q        quit

Launched without --port or --url, a port picker lists detected serial
devices. The connection reopens automatically with backoff when a read
fails.`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

func runView(cmd *cobra.Command, args []string) error {
	cm := &connectionManager{
		done: make(chan struct{}),
	}

	picking := portName == "" && wsURL == ""
	connInfo := ""

	if picking {
		// No source given: the TUI starts on the port picker
		if len(listPortItems()) == 0 {
			fmt.Fprintln(os.Stderr, "No serial ports found")
			os.Exit(1)
		}
	} else {
		// Open initial connection (serial or WebSocket)
		conn, info, err := OpenConnection()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		cm.setConn(conn, info)
		connInfo = info
	}

	m := initialViewModel(cm, connInfo, picking)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	if !picking {
		go cm.readerLoop()
	}

	if _, err := p.Run(); err != nil {
		close(cm.done)
		if conn := cm.getConn(); conn != nil {
			conn.Close()
		}
		return fmt.Errorf("TUI error: %v", err)
	}

	close(cm.done)
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}
	return nil
}

// listPortItems enumerates serial ports for the picker
func listPortItems() []portItem {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil
	}
	items := make([]portItem, 0, len(ports))
	for _, path := range ports {
		name := path[strings.LastIndex(path, "/")+1:]
		if strings.HasPrefix(name, "ttyS") {
			continue
		}
		items = append(items, portItem{path: path, label: portFriendlyName(name)})
	}
	return items
}

// viewConnectCmd opens the connection chosen in the picker and starts
// the reader loop on success.
func viewConnectCmd(cm *connectionManager) tea.Cmd {
	return func() tea.Msg {
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return viewConnErrMsg{err: err}
		}
		cm.setConn(conn, connInfo)
		go cm.readerLoop()
		return viewConnectedMsg{connInfo: connInfo}
	}
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		connLost := cm.readFromConnection()

		if connLost {
			// Notify TUI about connection loss
			cm.p.Send(connectionLostMsg{})

			// Attempt to reconnect
			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}
	}
}

// readFromConnection decodes packets from the connection until it fails.
// Returns true if connection was lost, false if shutdown requested.
func (cm *connectionManager) readFromConnection() bool {
	var decoder ld19.Decoder
	stream := &bytes.Buffer{}

	batchChan := make(chan *ld19.Packet, 512)
	countChan := make(chan viewCounts, 256)
	readerDone := make(chan struct{})

	// Reader goroutine - decodes packets and sends to batch channel
	go func() {
		defer close(readerDone)
		buf := make([]byte, 256)
		for {
			select {
			case <-cm.done:
				return
			default:
			}

			conn := cm.getConn()
			if conn == nil {
				return
			}

			n, err := conn.Read(buf)
			if err != nil {
				select {
				case <-cm.done:
					return
				default:
					if err == ErrConnectionClosed {
						return
					}
					// Brief pause before retry on transient errors (e.g., serial)
					time.Sleep(10 * time.Millisecond)
					continue
				}
			}
			stream.Write(buf[:n])

			counts := viewCounts{bytesRead: n}
			for {
				before := stream.Len()
				packet, decodeErr := decoder.Decode(stream)
				if decodeErr != nil {
					counts.crcErrors++
					continue
				}
				if packet == nil {
					if dropped := before - stream.Len(); dropped > 0 {
						counts.droppedBytes += dropped
					}
					break
				}
				select {
				case batchChan <- packet:
				default:
				}
			}
			select {
			case countChan <- counts:
			default:
			}
		}
	}()

	// Batch sender goroutine - sends batched updates to TUI at fixed rate
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-cm.done:
				return
			case <-readerDone:
				return
			case <-ticker.C:
				var batch viewBatchMsg

			packetLoop:
				for {
					select {
					case p := <-batchChan:
						batch.packets = append(batch.packets, p)
					default:
						break packetLoop
					}
				}

			countLoop:
				for {
					select {
					case c := <-countChan:
						batch.counts.bytesRead += c.bytesRead
						batch.counts.crcErrors += c.crcErrors
						batch.counts.droppedBytes += c.droppedBytes
					default:
						break countLoop
					}
				}

				if len(batch.packets) > 0 || batch.counts != (viewCounts{}) {
					cm.p.Send(batch)
				}
			}
		}
	}()

	// Wait for reader to finish (connection lost or shutdown)
	<-readerDone

	select {
	case <-cm.done:
		return false
	default:
		return true // Connection lost
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)

			// Notify TUI about reconnection
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
