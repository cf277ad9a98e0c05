// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mixbot/pkg/host"
	"github.com/Thermoquad/mixbot/pkg/mixproto"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlEventLines = 8
	actionListWidth   = 30
)

// Focus states
const (
	focusActionList = iota
	focusArgInput
)

//////////////////////////////////////////////////////////////
// Actions
//////////////////////////////////////////////////////////////

// actionResult is what a finished action reports back to the UI
type actionResult struct {
	summary string
	color   []float64
	target  bool // color is the new target
}

// controlAction is one entry of the action list
type controlAction struct {
	name        string
	desc        string
	placeholder string
	run         func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error)
}

// Implement list.Item interface
func (a controlAction) Title() string       { return a.name }
func (a controlAction) Description() string { return a.desc }
func (a controlAction) FilterValue() string { return a.name }

// splitArgs splits on spaces and commas
func splitArgs(arg string) []string {
	return strings.FieldsFunc(arg, func(r rune) bool { return r == ' ' || r == ',' })
}

// pumpArgs parses "PUMP [NUMBER]"
func pumpArgs(arg string, numberRequired bool) (string, float64, error) {
	fields := splitArgs(arg)
	if len(fields) == 0 || len(fields) > 2 {
		return "", 0, fmt.Errorf("expected PUMP [NUMBER], got %q", arg)
	}
	if len(fields) == 1 {
		if numberRequired {
			return "", 0, fmt.Errorf("expected PUMP NUMBER, got %q", arg)
		}
		return strings.ToUpper(fields[0]), 0, nil
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid number %q: %w", fields[1], err)
	}
	return strings.ToUpper(fields[0]), v, nil
}

func mixtureArg(arg string) ([]float64, error) {
	fields := splitArgs(arg)
	if len(fields) != len(host.MixturePumps) {
		return nil, fmt.Errorf("expected R G B Y amounts, got %q", arg)
	}
	return parseMixture(fields)
}

func controlActions() []controlAction {
	return []controlAction{
		{
			name: "Measure",
			desc: "Read the cell color",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				rgb, err := pc.Measure(ctx)
				if err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: "Measured " + host.Hex(rgb[0], rgb[1], rgb[2]), color: rgb}, nil
			},
		},
		{
			name:        "Mix",
			desc:        "Mix, measure, log, reset",
			placeholder: "R G B Y",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				mixture, err := mixtureArg(arg)
				if err != nil {
					return actionResult{}, err
				}
				rgb, err := pc.MixColor(ctx, mixture, false)
				if err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: fmt.Sprintf("Mixed %v", mixture), color: rgb}, nil
			},
		},
		{
			name:        "Set target",
			desc:        "Mix the target color",
			placeholder: "R G B Y",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				mixture, err := mixtureArg(arg)
				if err != nil {
					return actionResult{}, err
				}
				rgb, err := pc.ChangeTarget(ctx, mixture)
				if err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: fmt.Sprintf("Target set from %v", mixture), color: rgb, target: true}, nil
			},
		},
		{
			name:        "Purge",
			desc:        "Prime a pump hose",
			placeholder: "PUMP [SECONDS]",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				pump, seconds, err := pumpArgs(arg, false)
				if err != nil {
					return actionResult{}, err
				}
				if err := pc.PurgePump(ctx, pump, seconds); err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: "Purged " + pump}, nil
			},
		},
		{
			name:        "Run pump",
			desc:        "Dispense a volume",
			placeholder: "PUMP VOLUME",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				pump, volume, err := pumpArgs(arg, true)
				if err != nil {
					return actionResult{}, err
				}
				if err := pc.RunPump(ctx, pump, volume); err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: fmt.Sprintf("Dispensed %g through %s", volume, pump)}, nil
			},
		},
		{
			name: "Flush",
			desc: "Fill the cell with water",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				return actionResult{summary: "Cell flushed"}, pc.Flush(ctx)
			},
		},
		{
			name:        "Drain",
			desc:        "Empty the cell",
			placeholder: "[SECONDS]",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				var seconds float64
				if strings.TrimSpace(arg) != "" {
					v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
					if err != nil {
						return actionResult{}, fmt.Errorf("invalid duration %q: %w", arg, err)
					}
					seconds = v
				}
				return actionResult{summary: "Cell drained"}, pc.Drain(ctx, seconds)
			},
		},
		{
			name: "Reset",
			desc: "Drain, flush, drain",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				return actionResult{summary: "Cell reset"}, pc.Reset(ctx)
			},
		},
		{
			name:        "Send",
			desc:        "Send a raw command",
			placeholder: "Mix,3,0.5",
			run: func(ctx context.Context, pc *host.PumpController, arg string) (actionResult, error) {
				reply, err := pc.Client().Send(ctx, strings.TrimSpace(arg))
				if err != nil {
					return actionResult{}, err
				}
				return actionResult{summary: strings.TrimSpace(mixproto.FormatReply(reply))}, nil
			},
		},
	}
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	actions    []controlAction
	actionList list.Model
	argInput   textinput.Model
	focused    int

	// Running action
	busy       bool
	busyAction string
	busySince  time.Time

	// Colors
	lastColor   []float64
	targetColor []float64

	// Monitoring
	stats         mixproto.Statistics
	hasStats      bool
	eventLog      []eventLogEntry
	maxLogEntries int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type actionResultMsg struct {
	action  string
	result  actionResult
	err     error
	elapsed time.Duration
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	actions := controlActions()

	ti := textinput.New()
	ti.CharLimit = mixproto.MaxContent
	ti.Width = 24

	items := make([]list.Item, len(actions))
	for i, a := range actions {
		items[i] = a
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	actionList := list.New(items, delegate, actionListWidth, 14)
	actionList.Title = "Actions"
	actionList.SetShowStatusBar(false)
	actionList.SetShowHelp(false)
	actionList.SetFilteringEnabled(false)

	m := controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		actions:       actions,
		actionList:    actionList,
		argInput:      ti,
		focused:       focusActionList,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.syncPlaceholder()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.actionList, _ = m.actionList.Update(msg)
			m.syncPlaceholder()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		if m.connMgr != nil {
			m.stats, m.hasStats = m.connMgr.stats()
			m.stats.CalculateRates()
		}
		return m, controlTickCmd()

	case actionResultMsg:
		m.busy = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
			break
		}
		if msg.result.color != nil {
			m.lastColor = msg.result.color
			if msg.result.target {
				m.targetColor = msg.result.color
			}
		}
		m.addLogEntry(fmt.Sprintf("%s (%.1fs)", msg.result.summary, msg.elapsed.Seconds()), false)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		if m.targetColor != nil {
			m.targetColor = nil
			m.addLogEntry("Reconnected - target cleared, set it again", false)
		} else {
			m.addLogEntry("Reconnected", false)
		}
	}

	var cmd tea.Cmd
	if m.focused == focusArgInput {
		m.argInput, cmd = m.argInput.Update(msg)
	}
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused == focusActionList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		return m.toggleFocus(), nil

	case "esc":
		if m.focused == focusArgInput {
			return m.toggleFocus(), nil
		}

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focused == focusActionList {
			m.actionList, _ = m.actionList.Update(msg)
			m.syncPlaceholder()
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focused == focusArgInput {
		var cmd tea.Cmd
		m.argInput, cmd = m.argInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m controlModel) toggleFocus() controlModel {
	if m.focused == focusActionList {
		m.focused = focusArgInput
		m.argInput.Focus()
	} else {
		m.focused = focusActionList
		m.argInput.Blur()
	}
	return m
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	action, ok := m.selectedAction()
	if !ok {
		return m, nil
	}

	// Actions with arguments take them from the input field first
	if action.placeholder != "" && m.focused == focusActionList && strings.TrimSpace(m.argInput.Value()) == "" {
		if !strings.HasPrefix(action.placeholder, "[") {
			return m.toggleFocus(), nil
		}
	}

	if m.connectionLost {
		m.addLogEntry("Cannot run action: connection lost", true)
		return m, nil
	}
	if m.busy {
		m.addLogEntry(fmt.Sprintf("Busy: %s still running", m.busyAction), true)
		return m, nil
	}
	if m.connMgr == nil {
		return m, nil
	}

	arg := m.argInput.Value()
	m.busy = true
	m.busyAction = action.name
	m.busySince = time.Now()
	m.addLogEntry(fmt.Sprintf("Running %s %s", action.name, arg), false)
	return m, m.connMgr.runAction(action, arg)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("MIXBOT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch Enter=run q=quit", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (actions) | right panel (arguments and colors)
	rightWidth := m.width - actionListWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := boxStyle.Width(actionListWidth)
	if m.focused == focusActionList {
		listStyle = focusedBoxStyle.Width(actionListWidth)
	}
	actionPanel := listStyle.Render(m.actionList.View())

	panelStyle := boxStyle.Width(rightWidth)
	if m.focused == focusArgInput {
		panelStyle = focusedBoxStyle.Width(rightWidth)
	}
	controlPanel := panelStyle.Render(m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, actionPanel, " ", controlPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder

	if action, ok := m.selectedAction(); ok {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Action:"), action.name))
		s.WriteString(headerStyle.Render(action.desc))
		s.WriteString("\n\n")
		if action.placeholder != "" {
			s.WriteString(statsLabelStyle.Render("Arguments: "))
			s.WriteString(m.argInput.View())
			s.WriteString("\n\n")
		}
	}

	if m.busy {
		s.WriteString(warningStyle.Render(fmt.Sprintf("⏳ %s running (%.0fs)", m.busyAction, time.Since(m.busySince).Seconds())))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Idle"))
	}
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Last color: "))
	if m.lastColor != nil {
		s.WriteString(renderSwatch(m.lastColor))
	} else {
		s.WriteString(headerStyle.Render("(none)"))
	}
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Target:     "))
	if m.targetColor != nil {
		s.WriteString(renderSwatch(m.targetColor))
		if m.lastColor != nil {
			s.WriteString(headerStyle.Render(fmt.Sprintf("  distance %.1f", colorDistance(m.lastColor, m.targetColor))))
		}
	} else {
		s.WriteString(headerStyle.Render("(not set)"))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	if !m.hasStats {
		return boxStyle.Width(m.width - 4).Render(statsLabelStyle.Render("No statistics yet"))
	}

	var errorPercent float64
	if m.stats.TotalFrames > 0 {
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Acks:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.AckReplies)),
		statsLabelStyle.Render("RGB:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.RGBReplies)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := controlEventLines
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m controlModel) selectedAction() (controlAction, bool) {
	idx := m.actionList.Index()
	if idx < 0 || idx >= len(m.actions) {
		return controlAction{}, false
	}
	return m.actions[idx], true
}

// syncPlaceholder shows the selected action's argument hint
func (m *controlModel) syncPlaceholder() {
	if action, ok := m.selectedAction(); ok {
		m.argInput.Placeholder = action.placeholder
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height - controlEventLines - 12
	if listHeight < 6 {
		listHeight = 6
	}
	m.actionList.SetSize(actionListWidth-2, listHeight)
}
