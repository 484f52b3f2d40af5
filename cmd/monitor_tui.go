// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/calyptra/azimuth/pkg/ld19"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// monitorModel is the Bubble Tea model for the monitor dashboard
type monitorModel struct {
	connInfo string
	showAll  bool
	validate bool

	stats         *ld19.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	synchronized bool
	invalidBytes int
	lastPacket   *ld19.Packet
	anomalies    uint64

	width    int
	height   int
	quitting bool
}

// Messages
type monitorTickMsg time.Time

type streamDataMsg struct {
	packet       *ld19.Packet
	decodeErr    error
	findings     []ld19.ValidationError
	droppedBytes int
	bytesRead    int
}

type streamSyncMsg struct {
	invalidBytes int
}

type streamBatchMsg struct {
	messages []streamDataMsg
	syncMsg  *streamSyncMsg
}

func initialMonitorModel(connInfo string, showAll, validate bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		showAll:       showAll,
		validate:      validate,
		stats:         ld19.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.anomalies = 0
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, monitorTickCmd()

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

func (m *monitorModel) applySync(msg streamSyncMsg) {
	m.synchronized = true
	m.invalidBytes = msg.invalidBytes
	if msg.invalidBytes > 0 {
		m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
	} else {
		m.addLogEntry("Synchronized", false)
	}
}

func (m *monitorModel) applyData(msg streamDataMsg) {
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

		if len(msg.findings) > 0 {
			m.anomalies += uint64(len(msg.findings))
			for _, err := range msg.findings {
				m.addLogEntry(err.Message, true)
			}
		} else if m.showAll {
			m.addLogEntry(ld19.FormatPacket(msg.packet, ld19.FormatSummary), false)
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
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
	s.WriteString(titleStyle.Render("AZIMUTH - STREAM MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit, 'r' to reset",
		m.connInfo, func() string {
			if m.showAll {
				return "All packets"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	var crcPercent float64
	if total := m.stats.TotalPackets + m.stats.CRCErrors; total > 0 {
		crcPercent = float64(m.stats.CRCErrors) * 100.0 / float64(total)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Packets:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.CRCErrors, crcPercent)),
		statsLabelStyle.Render("Sync Losses:"), errorStyle.Render(fmt.Sprintf("%d (%d B)", m.stats.SyncLosses, m.stats.SyncLossBytes)),
	))

	if m.validate {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", m.anomalies)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Last packet section
	if m.lastPacket != nil {
		s.WriteString(statsLabelStyle.Render("Last Packet:"))
		s.WriteString("\n")

		packetContent := strings.Builder{}
		packetContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Speed:"), statsValueStyle.Render(fmt.Sprintf("%d deg/s (%.1f Hz)", m.lastPacket.Speed, m.lastPacket.RotationHz())),
			statsLabelStyle.Render("Timestamp:"), statsValueStyle.Render(fmt.Sprintf("%d ms", m.lastPacket.Timestamp)),
		))
		packetContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Angles:"), statsValueStyle.Render(fmt.Sprintf("%.2f° → %.2f° (Δ %.2f°)",
				m.lastPacket.StartAngleDeg(), m.lastPacket.EndAngleDeg(), m.lastPacket.DeltaAngleDeg())),
		))

		s.WriteString(boxStyle.Render(packetContent.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
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
