// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/calyptra/azimuth/pkg/ld19"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Full-screen live status dashboard",
	Long: `Watch the sensor live: rotation speed, measured rates, angular
resolution, range window and an event log, updated continuously.

Keys: q quits, r resets statistics.

Supports both serial and WebSocket connections.`,
	RunE: runStatusTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runStatusTUI(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	m := initialStatusModel(connInfo)
	p := tea.NewProgram(m)

	go streamReaderLoop(conn, p, false)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// statusModel is the Bubble Tea model for the live status dashboard
type statusModel struct {
	connInfo string

	stats         *ld19.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	synchronized bool
	invalidBytes int
	lastPacket   *ld19.Packet

	width    int
	height   int
	quitting bool
}

type statusTickMsg time.Time

func initialStatusModel(connInfo string) statusModel {
	return statusModel{
		connInfo:      connInfo,
		stats:         ld19.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(
		statusTickCmd(),
		tea.EnterAltScreen,
	)
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusTickMsg:
		m.stats.CalculateRates()
		return m, statusTickCmd()

	case streamSyncMsg:
		m.applySync(msg)

	case streamBatchMsg:
		if msg.syncMsg != nil {
			m.applySync(*msg.syncMsg)
		}
		for _, data := range msg.messages {
			m.applyData(data)
		}
	}

	return m, nil
}

func (m *statusModel) applySync(msg streamSyncMsg) {
	m.synchronized = true
	m.invalidBytes = msg.invalidBytes
	if msg.invalidBytes > 0 {
		m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
	} else {
		m.addLogEntry("Synchronized", false)
	}
}

func (m *statusModel) applyData(msg streamDataMsg) {
	if msg.bytesRead > 0 {
		m.stats.RecordBytes(msg.bytesRead)
	}

	if msg.decodeErr != nil {
		m.stats.RecordCRCError()
		m.addLogEntry(fmt.Sprintf("CRC ERROR: %v", msg.decodeErr), true)
		return
	}

	if msg.droppedBytes > 0 {
		m.stats.RecordSyncLoss(msg.droppedBytes)
		m.addLogEntry(fmt.Sprintf("SYNC LOSS: discarded %d bytes", msg.droppedBytes), true)
		return
	}

	if msg.packet != nil {
		m.stats.Update(msg.packet)
		m.lastPacket = msg.packet
	}
}

func (m *statusModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m statusModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("AZIMUTH - LIVE STATUS"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit, 'r' to reset", m.connInfo)))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for first packet..."))
		s.WriteString("\n\n")
	}

	m.stats.CalculateRates()

	// Stream panel
	streamContent := strings.Builder{}
	streamContent.WriteString(statsLabelStyle.Render("Stream") + "\n")
	streamContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Packets:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets))))
	streamContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.stats.PacketRate))))
	crcText := statsValueStyle.Render("0")
	if m.stats.CRCErrors > 0 {
		crcText = errorStyle.Render(fmt.Sprintf("%d (%.1f/s)", m.stats.CRCErrors, m.stats.ErrorRate))
	}
	streamContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("CRC Errors:"), crcText))
	syncText := statsValueStyle.Render("0")
	if m.stats.SyncLosses > 0 {
		syncText = errorStyle.Render(fmt.Sprintf("%d (%d B)", m.stats.SyncLosses, m.stats.SyncLossBytes))
	}
	streamContent.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Sync Losses:"), syncText))
	streamContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.BytesRead))))

	// Rotation panel
	rotationContent := strings.Builder{}
	rotationContent.WriteString(statsLabelStyle.Render("Rotation") + "\n")
	if m.lastPacket != nil {
		rotationContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Speed:"),
			statsValueStyle.Render(fmt.Sprintf("%d deg/s (%.1f Hz)", m.lastPacket.Speed, m.lastPacket.RotationHz()))))
	} else {
		rotationContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Speed:"), headerStyle.Render("waiting...")))
	}
	rotationContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Measured:"),
		statsValueStyle.Render(fmt.Sprintf("%.2f Hz (%d turns)", m.stats.RotationRateHz(), m.stats.Rotations))))
	rotationContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Samples:"),
		statsValueStyle.Render(fmt.Sprintf("%.2f kHz", m.stats.SampleRateHz()*1e-3))))
	rotationContent.WriteString(fmt.Sprintf("%s %s\n",
		statsLabelStyle.Render("Resolution:"),
		statsValueStyle.Render(fmt.Sprintf("%.2f deg/point", m.stats.AngularResolutionDeg()))))
	rotationContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Range:"),
		statsValueStyle.Render(fmt.Sprintf("%.2f - %.2f m", m.stats.MinDistanceM(), m.stats.MaxDistanceM()))))

	panelWidth := (m.width - 8) / 2
	if panelWidth < 30 {
		panelWidth = 30
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Width(panelWidth).Render(streamContent.String()),
		" ",
		boxStyle.Width(panelWidth).Render(rotationContent.String()),
	))
	s.WriteString("\n\n")

	// Last packet line
	if m.lastPacket != nil {
		s.WriteString(headerStyle.Render(ld19.FormatPacket(m.lastPacket, ld19.FormatSummary)))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18
	if logHeight < 4 {
		logHeight = 4
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
