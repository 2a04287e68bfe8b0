package ui

import "streetviewdl/pkg/pipeline"

// Display is a progress observer that must be closed once the run ends.
// ProgressDisplay and tui.TUI both implement it.
type Display interface {
	pipeline.Observer
	Close()
}

var _ Display = (*ProgressDisplay)(nil)
