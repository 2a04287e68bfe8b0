package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"streetviewdl/pkg/stats"
)

// StageMsg starts a pipeline stage
type StageMsg struct {
	Name  string
	Total int
}

// SnapshotMsg carries the run counters
type SnapshotMsg struct {
	Stage    string
	Snapshot stats.Snapshot
}

// LogMsg adds an event line
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg ends the program once the run has returned
type DoneMsg struct{}

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StageMsg:
		m.SetStage(msg.Name, msg.Total)
		return m, nil

	case SnapshotMsg:
		if msg.Stage != "" && msg.Stage != m.stage {
			m.SetStage(msg.Stage, 0)
		}
		m.Apply(msg.Snapshot)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress stops the run on the first quit key and leaves the
// dashboard on the second
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.stopping {
			return m, tea.Quit
		}
		m.stopping = true
		m.AddLogMessage("WARN", "Stopping: in-flight requests will finish, press q again to leave")
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}
