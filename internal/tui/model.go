// Package tui is the interactive front end: it starts tasks on the runner and
// renders their event stream without ever blocking on the worker.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/fetchdeck/internal/dispatch"
	"github.com/aristath/fetchdeck/internal/events"
	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/persistence"
	"github.com/aristath/fetchdeck/internal/runner"
)

// progressPaneHeight is the fixed height of the top pane.
const progressPaneHeight = 8

// Config configures the TUI.
type Config struct {
	Runner    *runner.Runner
	NewTask   func() (*runner.Task, error) // Builds a fresh task for every run
	Params    string                       // Parameter summary stored in history
	Recorder  *persistence.Recorder        // Optional task history
	Logger    log.Logger
	AutoStart bool // Start a task as soon as the program runs
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	cfg          Config
	logger       log.Logger
	state        dispatch.State
	progressPane ProgressPaneModel
	logPane      LogPaneModel
	busyNotice   string
	width        int
	height       int
	quitting     bool
}

// startMsg asks the model to start a new task.
type startMsg struct{}

// eventMsg carries one event taken off a task channel.
type eventMsg struct {
	event events.Event
	ch    *events.Channel
}

// streamEndMsg reports that a task channel has nothing more to deliver.
type streamEndMsg struct {
	err error
}

// New creates a new TUI model.
func New(cfg Config) Model {
	if cfg.Logger == nil {
		cfg.Logger = log.Noop
	}
	return Model{
		cfg:          cfg,
		logger:       cfg.Logger.WithValues(log.Kv{"svc": "tui"}),
		progressPane: NewProgressPaneModel(),
		logPane:      NewLogPaneModel(),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.progressPane.Tick}
	if m.cfg.AutoStart {
		cmds = append(cmds, func() tea.Msg { return startMsg{} })
	}
	return tea.Batch(cmds...)
}

// waitForEvent returns a command that waits for the next event of a task and
// records it in history. Commands run off the interactive goroutine, and the
// next one is only issued once the previous event has been applied, so
// history sees events in order.
func waitForEvent(ch *events.Channel, rec *persistence.Recorder, logger log.Logger) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		e, err := ch.Next(ctx)
		if err != nil {
			return streamEndMsg{err: err}
		}
		if err := rec.Record(ctx, e); err != nil {
			logger.Warningf("History: %v", err)
		}
		return eventMsg{event: e, ch: ch}
	}
}

// beginTask records the task in history, then waits for its first event.
func beginTask(task *runner.Task, ch *events.Channel, cfg Config, logger log.Logger) tea.Cmd {
	return func() tea.Msg {
		if err := cfg.Recorder.Begin(context.Background(), task, cfg.Params); err != nil {
			logger.Warningf("History: %v", err)
		}
		return waitForEvent(ch, cfg.Recorder, logger)()
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case startMsg:
		cmds = append(cmds, m.start())

	case eventMsg:
		if m.state.Apply(msg.event) {
			cmds = append(cmds, m.logPane.Append(msg.event))
		}
		if events.IsTerminal(msg.event) {
			if !m.state.Busy {
				m.busyNotice = ""
			}
		} else {
			cmds = append(cmds, waitForEvent(msg.ch, m.cfg.Recorder, m.logger))
		}

	case streamEndMsg:
		if msg.err != nil && !errors.Is(msg.err, events.ErrClosed) {
			m.logger.Warningf("Event stream ended: %v", msg.err)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey applies one key press.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()

	if key == KeyQuit || key == KeyCtrlC {
		m.quitting = true
		if m.state.Busy {
			m.cfg.Runner.Cancel(m.state.TaskID)
		}
		return tea.Quit
	}

	// A failure notice blocks everything but dismissal.
	if m.state.Notice != "" {
		if key == KeyDismiss || key == KeyEsc {
			m.state.DismissNotice()
		}
		return nil
	}

	switch key {
	case KeyRerun:
		return m.start()

	case KeyCancel:
		if !m.state.Busy {
			return nil
		}
		if m.cfg.Runner.Cancel(m.state.TaskID) {
			m.busyNotice = ""
			return m.logPane.AppendLine(fmt.Sprintf("Cancelling %s...", m.state.Label))
		}
		return nil

	case KeyEsc:
		m.busyNotice = ""
		return nil

	default:
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		return cmd
	}
}

// start builds a task and hands it to the runner. When the runner is busy the
// new task is dropped and a notice is shown instead.
func (m *Model) start() tea.Cmd {
	if m.cfg.Runner == nil || m.cfg.NewTask == nil {
		return nil
	}

	if m.cfg.Runner.Busy() {
		m.busyNotice = m.busyText()
		return nil
	}

	task, err := m.cfg.NewTask()
	if err != nil {
		m.state.Notice = fmt.Sprintf("Cannot start task: %v", err)
		return nil
	}

	ch, ok := m.cfg.Runner.Start(task)
	if !ok {
		m.busyNotice = m.busyText()
		return nil
	}

	m.busyNotice = ""
	m.state.Begin(task.ID, task.Label)
	m.logger.Debugf("Started task %s", task.ID)

	return tea.Batch(
		m.logPane.AppendLine(StyleStatusRunning.Render("▶")+" "+m.state.Status),
		beginTask(task, ch, m.cfg, m.logger),
	)
}

func (m Model) busyText() string {
	if m.state.Busy && m.state.Label != "" {
		return fmt.Sprintf("%s is still running. Press c to cancel it first.", m.state.Label)
	}
	return "A task is already running."
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	parts := []string{m.progressPane.View(m.state)}

	if m.state.Notice != "" {
		parts = append(parts, StyleNoticeBorder.
			Width(m.width-4).
			Render(StyleStatusFailed.Render(m.state.Notice)+"\n\n"+StyleHelp.Render("Press enter to dismiss.")))
	} else if m.busyNotice != "" {
		parts = append(parts, StyleBusy.Render(m.busyNotice))
	}

	parts = append(parts, m.logPane.View(), HelpView())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	availableHeight := m.height - 2 // help bar and notice line
	m.progressPane.SetSize(m.width, progressPaneHeight)
	m.logPane.SetSize(m.width, max(availableHeight-progressPaneHeight, 5))
}

// State returns the displayed task state.
func (m Model) State() dispatch.State {
	return m.state
}

// BusyNotice returns the notice shown after a rejected start, if any.
func (m Model) BusyNotice() string {
	return m.busyNotice
}
