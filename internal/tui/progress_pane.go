package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/fetchdeck/internal/dispatch"
)

// ProgressPaneModel renders the current task: its status line, a progress bar
// and the outcome of the last run.
type ProgressPaneModel struct {
	bar     progress.Model
	spinner spinner.Model
	width   int
	height  int
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleStatusRunning

	return ProgressPaneModel{
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: sp,
	}
}

// Tick starts the spinner animation.
func (m ProgressPaneModel) Tick() tea.Msg {
	return m.spinner.Tick()
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	if msg, ok := msg.(spinner.TickMsg); ok {
		m.spinner, cmd = m.spinner.Update(msg)
	}
	return m, cmd
}

// View renders the pane for state.
func (m ProgressPaneModel) View(state dispatch.State) string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := "No task"
	if state.Label != "" {
		title = state.Label
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(m.statusIcon(state))
	b.WriteString(" ")
	b.WriteString(state.Status)
	b.WriteString("\n\n")

	// The bar renders the fraction directly; animation would lag the status line.
	b.WriteString(m.bar.ViewAs(state.Fraction))
	if pct := state.PercentText(); pct != "" {
		b.WriteString("  ")
		b.WriteString(pct)
	}

	return StylePaneBorder.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// statusIcon returns a styled indicator for the task state.
func (m ProgressPaneModel) statusIcon(state dispatch.State) string {
	if state.Busy {
		return m.spinner.View()
	}
	switch state.Outcome {
	case dispatch.OutcomeSucceeded:
		return StyleStatusComplete.Render("✓")
	case dispatch.OutcomeFailed:
		return StyleStatusFailed.Render("✗")
	case dispatch.OutcomeCancelled:
		return StyleStatusFailed.Render("■")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = max(w-12, 10)
}
