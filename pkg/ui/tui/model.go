package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"streetviewdl/pkg/stats"
)

// Stage names with a known total get a progress bar
const stageDownload = "download"

// LogMessage is a line in the event panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of the run dashboard. All state changes
// happen in Update on the program goroutine.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	stage    string
	total    int
	snap     stats.Snapshot
	finished []string

	logMessages    []LogMessage
	maxLogMessages int

	width    int
	height   int
	showHelp bool
	stopping bool
	done     bool

	onQuit func()
}

// NewModel creates a dashboard. onQuit is called once when the user asks to
// stop the run.
func NewModel(onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(skyBlue)

	return Model{
		spinner:        s,
		bar:            progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		maxLogMessages: 50,
		onQuit:         onQuit,
	}
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetStage switches to a new stage and records the previous one as done
func (m *Model) SetStage(name string, total int) {
	if m.stage != "" && m.stage != name {
		m.finished = append(m.finished, m.stage)
		m.AddLogMessage("SUCCESS", fmt.Sprintf("%s finished", m.stage))
	}
	m.stage = name
	m.total = total
	if total > 0 {
		m.AddLogMessage("INFO", fmt.Sprintf("%s started: %d panoramas", name, total))
	} else {
		m.AddLogMessage("INFO", name+" started")
	}
}

// Apply takes a new snapshot and logs failure counts that went up
func (m *Model) Apply(snap stats.Snapshot) {
	if d := snap.PointsFailed - m.snap.PointsFailed; d > 0 {
		m.AddLogMessage("WARN", fmt.Sprintf("%d more lookups failed (%d total)", d, snap.PointsFailed))
	}
	if d := snap.DownloadsFailed - m.snap.DownloadsFailed; d > 0 {
		m.AddLogMessage("ERROR", fmt.Sprintf("%d more panoramas failed (%d total)", d, snap.DownloadsFailed))
	}
	m.snap = snap
}

// AddLogMessage appends an event, keeping the most recent ones
func (m *Model) AddLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Fraction is the completed share of the current stage, or -1 when the
// stage has no known total
func (m *Model) Fraction() float64 {
	if m.stage != stageDownload || m.total <= 0 {
		return -1
	}
	f := float64(m.snap.Finished()) / float64(m.total)
	if f > 1 {
		f = 1
	}
	return f
}

// Stopping reports whether the user asked to stop the run
func (m *Model) Stopping() bool {
	return m.stopping
}
