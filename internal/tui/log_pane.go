package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/fetchdeck/internal/events"
)

// maxLogLines bounds the event log kept in memory.
const maxLogLines = 500

// LogPaneModel is the scrollable event log of every task run in this session.
type LogPaneModel struct {
	lines     []string
	viewport  viewport.Model
	width     int
	height    int
	updateTag int // for debouncing
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	vp := viewport.New(0, 0)
	vp.SetContent("Waiting for tasks...")
	return LogPaneModel{
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The viewport keymap already scrolls on j/k and the arrow keys.
		m.viewport, cmd = m.viewport.Update(msg)

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.refresh()
		}
	}

	return m, cmd
}

// Append adds a line for e to the log. Progress events are not logged. The
// viewport refresh is debounced so bursts of status lines render once.
func (m *LogPaneModel) Append(e events.Event) tea.Cmd {
	line, ok := logLine(e)
	if !ok {
		return nil
	}
	return m.AppendLine(line)
}

// AppendLine adds a raw line to the log.
func (m *LogPaneModel) AppendLine(line string) tea.Cmd {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = m.lines[over:]
	}

	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// Lines returns the logged lines.
func (m LogPaneModel) Lines() []string {
	return m.lines
}

func logLine(e events.Event) (string, bool) {
	var stamp time.Time
	var text string

	switch ev := e.(type) {
	case events.StatusEvent:
		stamp, text = ev.Timestamp, ev.Message
	case events.DoneEvent:
		stamp = ev.Timestamp
		text = StyleStatusComplete.Render("✓") + " " + ev.Message +
			fmt.Sprintf(" [%s]", ev.Duration.Round(time.Millisecond))
	case events.ErrorEvent:
		stamp = ev.Timestamp
		text = StyleStatusFailed.Render("✗") + " " + ev.Message
	default:
		return "", false
	}

	if stamp.IsZero() {
		stamp = time.Now()
	}
	return StyleStatusPending.Render(stamp.Format("15:04:05")) + " " + text, true
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	return StylePaneBorder.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(StyleTitle.Render("Log") + "\n" + m.viewport.View())
}

// refresh renders the log into the viewport and follows the tail.
func (m *LogPaneModel) refresh() {
	if len(m.lines) == 0 {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h

	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-3, 3)
	m.refresh()
}
