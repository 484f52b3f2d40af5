// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Calyptra Robotics

package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/calyptra/azimuth/pkg/ld19"
)

//////////////////////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////////////////////

type viewTickMsg time.Time

// viewCounts carries per-read byte and error tallies from the reader
// goroutine to the model.
type viewCounts struct {
	bytesRead    int
	crcErrors    int
	droppedBytes int
}

// viewBatchMsg delivers all packets decoded since the last batch tick.
type viewBatchMsg struct {
	packets []*ld19.Packet
	counts  viewCounts
}

type viewConnectedMsg struct {
	connInfo string
}

type viewConnErrMsg struct {
	err error
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

func viewTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return viewTickMsg(t)
	})
}

//////////////////////////////////////////////////////////////////////////////
// Port picker items
//////////////////////////////////////////////////////////////////////////////

type portItem struct {
	path  string
	label string
}

func (p portItem) Title() string       { return p.path }
func (p portItem) Description() string { return p.label }
func (p portItem) FilterValue() string { return p.path }

//////////////////////////////////////////////////////////////////////////////
// Braille canvas
//////////////////////////////////////////////////////////////////////////////

// brailleDotBits maps a dot position within a cell (row 0-3, column 0-1)
// to its bit in the braille pattern block.
var brailleDotBits = [4][2]uint8{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// brailleCanvas rasterizes dots into a character grid. Every cell holds
// two dot columns and four dot rows, so an (w x h) cell canvas carries
// (2w x 4h) addressable dots.
type brailleCanvas struct {
	w, h  int
	cells []uint8
}

func newBrailleCanvas(w, h int) *brailleCanvas {
	return &brailleCanvas{w: w, h: h, cells: make([]uint8, w*h)}
}

func (c *brailleCanvas) DotWidth() int  { return c.w * 2 }
func (c *brailleCanvas) DotHeight() int { return c.h * 4 }

// Set lights the dot at (x, y) in dot coordinates, origin top-left.
// Out-of-bounds dots are ignored.
func (c *brailleCanvas) Set(x, y int) {
	if x < 0 || y < 0 || x >= c.w*2 || y >= c.h*4 {
		return
	}
	c.cells[(y/4)*c.w+x/2] |= brailleDotBits[y%4][x%2]
}

func (c *brailleCanvas) String() string {
	var b strings.Builder
	b.Grow(c.h * (c.w*3 + 1))
	for row := 0; row < c.h; row++ {
		for col := 0; col < c.w; col++ {
			b.WriteRune(0x2800 + rune(c.cells[row*c.w+col]))
		}
		if row < c.h-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

//////////////////////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////////////////////

// viewPoint is one sample pinned to its interpolated azimuth.
type viewPoint struct {
	angleDeg float64
	pt       ld19.Point
}

// maxRotationPoints bounds the assembly buffer when no azimuth wrap
// arrives, e.g. a sensor stuck at constant angle.
const maxRotationPoints = 8192

type viewModel struct {
	cm       *connectionManager
	connInfo string

	picking bool
	picker  list.Model

	waiting bool
	spin    spinner.Model

	stats *ld19.Statistics

	// Rotation assembly: points accumulate in building and swap into
	// displayed when the azimuth wraps past zero.
	building     []viewPoint
	displayed    []viewPoint
	lastRotStart float64

	intensityMin float64
	rangeM       float64

	connLost bool
	lastErr  string

	width    int
	height   int
	quitting bool
}

func initialViewModel(cm *connectionManager, connInfo string, picking bool) viewModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)

	ports := listPortItems()
	items := make([]list.Item, len(ports))
	for i, p := range ports {
		items[i] = p
	}

	picker := list.New(items, delegate, 40, 14)
	picker.Title = "Select a serial port"
	picker.SetShowStatusBar(false)
	picker.SetShowHelp(false)
	picker.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return viewModel{
		cm:           cm,
		connInfo:     connInfo,
		picking:      picking,
		picker:       picker,
		waiting:      !picking,
		spin:         sp,
		stats:        ld19.NewStatistics(),
		intensityMin: 0,
		rangeM:       4.0,
		width:        80,
		height:       24,
	}
}

func (m viewModel) Init() tea.Cmd {
	return tea.Batch(viewTickCmd(), m.spin.Tick, tea.EnterAltScreen)
}

func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.picker.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case viewTickMsg:
		m.stats.CalculateRates()
		return m, viewTickCmd()

	case viewBatchMsg:
		m.applyBatch(msg)
		return m, nil

	case viewConnectedMsg:
		m.connInfo = msg.connInfo
		m.waiting = true
		m.connLost = false
		m.lastErr = ""
		return m, nil

	case viewConnErrMsg:
		// Back to the picker with the failure on display
		m.lastErr = msg.err.Error()
		m.picking = true
		m.waiting = false
		return m, nil

	case connectionLostMsg:
		m.connLost = true
		return m, nil

	case reconnectedMsg:
		m.connLost = false
		m.connInfo = msg.connInfo
		return m, nil
	}

	return m, nil
}

func (m viewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picking {
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			item, ok := m.picker.SelectedItem().(portItem)
			if !ok {
				return m, nil
			}
			portName = item.path
			m.picking = false
			m.waiting = true
			m.connInfo = fmt.Sprintf("serial %s", item.path)
			return m, tea.Batch(m.spin.Tick, viewConnectCmd(m.cm))
		default:
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.stats.Reset()
	case "+", "=":
		m.intensityMin = math.Min(m.intensityMin+0.05, 0.95)
	case "-", "_":
		m.intensityMin = math.Max(m.intensityMin-0.05, 0)
	case "[":
		m.rangeM = math.Max(m.rangeM/1.25, 0.25)
	case "]":
		m.rangeM = math.Min(m.rangeM*1.25, 12)
	}
	return m, nil
}

func (m *viewModel) applyBatch(msg viewBatchMsg) {
	if msg.counts.bytesRead > 0 {
		m.stats.RecordBytes(msg.counts.bytesRead)
	}
	for i := 0; i < msg.counts.crcErrors; i++ {
		m.stats.RecordCRCError()
	}
	if msg.counts.droppedBytes > 0 {
		m.stats.RecordSyncLoss(msg.counts.droppedBytes)
	}

	for _, p := range msg.packets {
		m.stats.Update(p)
		m.waiting = false

		start := p.StartAngleDeg()
		if start < m.lastRotStart && len(m.building) > 0 {
			m.displayed = m.building
			m.building = make([]viewPoint, 0, len(m.displayed)+ld19.PointsPerPacket)
		}
		m.lastRotStart = start

		for angle, pt := range p.Angles() {
			m.building = append(m.building, viewPoint{angleDeg: angle, pt: pt})
		}
		if len(m.building) >= maxRotationPoints {
			m.displayed = m.building
			m.building = make([]viewPoint, 0, maxRotationPoints)
		}
	}
}

//////////////////////////////////////////////////////////////////////////////
// Rendering
//////////////////////////////////////////////////////////////////////////////

// renderScatter projects the displayed rotation onto a braille canvas of
// cw x ch cells. The sensor sits at the center, forward (azimuth 0) is
// up, and the window spans rangeM meters in every direction. Returns the
// rendered canvas and how many points passed the display filters.
func (m viewModel) renderScatter(cw, ch int) (string, int) {
	canvas := newBrailleCanvas(cw, ch)
	dw, dh := canvas.DotWidth(), canvas.DotHeight()
	cx, cy := dw/2, dh/2

	// Dots per meter, fitted to the shorter half-axis. Braille dots are
	// close enough to square on common terminal fonts that one scale
	// serves both axes.
	scale := float64(min(dw, dh)) / 2 / m.rangeM

	// Sensor position marker
	canvas.Set(cx-1, cy)
	canvas.Set(cx, cy)
	canvas.Set(cx+1, cy)

	shown := 0
	for _, vp := range m.displayed {
		if vp.pt.Distance == 0 {
			continue
		}
		if vp.pt.NormalizedIntensity() < m.intensityMin {
			continue
		}
		x, y := ld19.PointXY(vp.angleDeg, vp.pt)
		if math.Abs(x) > m.rangeM || math.Abs(y) > m.rangeM {
			continue
		}
		canvas.Set(cx+int(math.Round(x*scale)), cy-int(math.Round(y*scale)))
		shown++
	}
	return canvas.String(), shown
}

func (m viewModel) View() string {
	if m.quitting {
		return ""
	}

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

	var s strings.Builder

	if m.picking {
		s.WriteString(titleStyle.Render("AZIMUTH - SCAN VIEW"))
		s.WriteString("\n\n")
		if m.lastErr != "" {
			s.WriteString(errorStyle.Render("✗ "+m.lastErr) + "\n\n")
		}
		s.WriteString(m.picker.View())
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Press Enter to connect, 'q' to quit"))
		return s.String()
	}

	s.WriteString(titleStyle.Render("AZIMUTH - SCAN VIEW"))
	s.WriteString("  ")
	switch {
	case m.connLost:
		s.WriteString(errorStyle.Render("✗ connection lost, reconnecting..."))
	case m.waiting:
		s.WriteString(warningStyle.Render(m.spin.View() + "waiting for data on " + m.connInfo))
	default:
		s.WriteString(headerStyle.Render(m.connInfo))
	}
	s.WriteString("\n")

	ch := m.height - 8
	if ch < 6 {
		ch = 6
	}
	cw := m.width - 6
	if cw < 20 {
		cw = 20
	}
	scatter, shown := m.renderScatter(cw, ch)
	s.WriteString(boxStyle.Render(scatter))
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Rotation "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("%5.2f Hz", m.stats.RotationRateHz())))
	s.WriteString(statsLabelStyle.Render("   Packets "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)))
	s.WriteString(statsLabelStyle.Render("   Rate "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.PacketRate)))
	if m.stats.CRCErrors > 0 {
		s.WriteString(statsLabelStyle.Render("   CRC "))
		s.WriteString(errorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)))
	}
	if m.stats.SyncLosses > 0 {
		s.WriteString(statsLabelStyle.Render("   Sync "))
		s.WriteString(warningStyle.Render(fmt.Sprintf("%d (%d B)", m.stats.SyncLosses, m.stats.SyncLossBytes)))
	}
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Range "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("±%.1f m", m.rangeM)))
	s.WriteString(statsLabelStyle.Render("   Intensity ≥ "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("%.2f", m.intensityMin)))
	s.WriteString(statsLabelStyle.Render("   Points "))
	s.WriteString(statsValueStyle.Render(fmt.Sprintf("%d/%d", shown, len(m.displayed))))
	s.WriteString("\n")

	s.WriteString(headerStyle.Render("'+'/'-': intensity | '['/']': zoom | 'r': reset | 'q': quit"))

	return s.String()
}
