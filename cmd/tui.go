// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// Latest device state seen on the link
type deviceState struct {
	lastAck     time.Time
	lastCommand string
	ticks       uint32
	hasTicks    bool
	lastColor   *mixproto.RGB
	restarts    int
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *mixproto.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	disconnected  bool
	width         int
	height        int
	quitting      bool
	device        deviceState
}

// Messages
type tickMsg time.Time
type replyMsg replyEvent
type syncMsg struct {
	invalidBytes int
}
type disconnectedMsg struct{}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         mixproto.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case disconnectedMsg:
		m.disconnected = true
		m.addLogEntry("Connection closed", true)

	case replyMsg:
		m.stats.UpdateReply(msg.reply, msg.err)
		if msg.reply == nil {
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
			break
		}

		m.trackDevice(msg.reply)

		kind := msg.reply.Kind.String()
		switch {
		case len(msg.anomalies) > 0:
			for _, a := range msg.anomalies {
				m.addLogEntry(fmt.Sprintf("%s: %s", kind, a.Message), true)
			}
		case msg.reply.Kind == mixproto.ReplyReady:
			m.addLogEntry("Device ready (restarted)", false)
		case m.showAll:
			m.addLogEntry(strings.TrimSuffix(mixproto.FormatReply(*msg.reply), "\n"), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// trackDevice updates the device panel from a decoded reply
func (m *model) trackDevice(r *mixproto.Reply) {
	switch r.Kind {
	case mixproto.ReplyReady:
		m.device.restarts++
		m.device.hasTicks = false
	case mixproto.ReplyAck:
		m.device.lastAck = time.Now()
		m.device.lastCommand = r.Message
		m.device.ticks = r.Ticks
		m.device.hasTicks = true
	case mixproto.ReplyRGB:
		c := r.Color
		m.device.lastColor = &c
	}
}

func (m model) View() string {
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
	s.WriteString(titleStyle.Render("MIXBOT - REPLY MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All replies"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset stats, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.disconnected:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for the first frame..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	var errorPercent float64
	if m.stats.TotalFrames > 0 {
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Acks:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.AckReplies)),
		statsLabelStyle.Render("RGB:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.RGBReplies)),
	))

	statsContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.Errors(), errorPercent)),
	))
	if m.stats.TruncatedFrames > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d)",
			headerStyle.Render("truncated"), m.stats.TruncatedFrames,
			headerStyle.Render("decode"), m.stats.DecodeErrors,
		))
	}
	statsContent.WriteString("\n")

	if m.stats.UnknownReplies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Other frames:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.UnknownReplies)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Device section (only shown once the device said something)
	if m.device.hasTicks || m.device.lastColor != nil || m.device.restarts > 0 {
		s.WriteString(statsLabelStyle.Render("Device:"))
		s.WriteString("\n")

		deviceContent := strings.Builder{}
		if m.device.hasTicks {
			deviceContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Uptime:"), statsValueStyle.Render("~"+mixproto.FormatTicks(m.device.ticks)),
			))
			deviceContent.WriteString(fmt.Sprintf("%s %s %s\n",
				statsLabelStyle.Render("Last command:"), statsValueStyle.Render(m.device.lastCommand),
				headerStyle.Render(m.device.lastAck.Format("15:04:05")),
			))
		}
		if m.device.lastColor != nil {
			deviceContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Last color:"), renderSwatch(m.device.lastColor.Slice()),
			))
		}
		if m.device.restarts > 0 {
			deviceContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Restarts:"), warningStyle.Render(fmt.Sprintf("%d", m.device.restarts)),
			))
		}

		s.WriteString(boxStyle.Render(strings.TrimSuffix(deviceContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
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
