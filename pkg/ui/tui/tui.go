// Package tui is a full screen dashboard for a download run.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"streetviewdl/pkg/stats"
)

// TUI drives a bubbletea program from pipeline progress callbacks
type TUI struct {
	program *tea.Program
	model   *Model
	exited  chan struct{}
	err     error
}

// NewTUI creates the dashboard. onQuit is called when the user presses q.
func NewTUI(onQuit func()) *TUI {
	model := NewModel(onQuit)
	return &TUI{
		program: tea.NewProgram(&model, tea.WithAltScreen()),
		model:   &model,
		exited:  make(chan struct{}),
	}
}

// Start runs the program in the background
func (t *TUI) Start() {
	go func() {
		defer close(t.exited)
		_, t.err = t.program.Run()
	}()
}

// Stage implements the pipeline observer
func (t *TUI) Stage(name string, total int) {
	t.program.Send(StageMsg{Name: name, Total: total})
}

// Update implements the pipeline observer
func (t *TUI) Update(stage string, snap stats.Snapshot) {
	t.program.Send(SnapshotMsg{Stage: stage, Snapshot: snap})
}

// Log adds an event line
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.program.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Close ends the program and waits for the terminal to be restored
func (t *TUI) Close() {
	t.program.Send(DoneMsg{})
	<-t.exited
}

// Err returns the error the program exited with, if any
func (t *TUI) Err() error {
	select {
	case <-t.exited:
		return t.err
	default:
		return nil
	}
}
