package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// View renders the dashboard
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	half := (m.width - 4) / 2

	sections := []string{
		titleBarStyle.Width(m.width).Render("streetviewdl  road network → panoramas → images"),
		m.renderStagePanel(m.width - 2),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderCountersPanel(half),
			"  ",
			m.renderLogsPanel(half),
		),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q stop run • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderStagePanel(width int) string {
	var lines []string

	var done []string
	for _, s := range m.finished {
		done = append(done, successStyle.Render("✓ "+s))
	}

	current := m.spinner.View() + " " + panelTitleStyle.Render(m.stage)
	switch {
	case m.done:
		current = successStyle.Render("✓ " + m.stage)
	case m.stopping:
		current = warningStyle.Render("⏸ stopping " + m.stage)
	case m.stage == "":
		current = dimStyle.Render("waiting")
	}
	lines = append(lines, strings.Join(append(done, current), "  "))

	if f := m.Fraction(); f >= 0 {
		lines = append(lines, fmt.Sprintf("%s %d/%d", m.bar.ViewAs(f), m.snap.Finished(), m.total))
	} else {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%s points looked up", humanize.Comma(m.snap.Looked()))))
	}

	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderCountersPanel(width int) string {
	s := m.snap
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}

	rows := []string{
		panelTitleStyle.Render("RUN"),
		row("Elapsed", s.Elapsed.Truncate(time.Second).String()),
		row("Points sampled", humanize.Comma(s.PointsSampled)),
		row("Panoramas", humanize.Comma(s.Panoramas)),
		row("Without imagery", humanize.Comma(s.PointsNotFound)),
		row("Lookups", fmt.Sprintf("%s (%s cached)", humanize.Comma(s.MetadataCalls), humanize.Comma(s.CacheHits))),
		row("Images", fmt.Sprintf("%s new, %s existing", humanize.Comma(s.ImagesDownloaded), humanize.Comma(s.ImagesExisting))),
		row("Written", humanize.Bytes(uint64(s.BytesWritten))),
	}
	if s.PointsFailed > 0 || s.DownloadsFailed > 0 {
		rows = append(rows, row("Failed", errorStyle.Render(fmt.Sprintf("%d lookups, %d panoramas", s.PointsFailed, s.DownloadsFailed))))
	}

	return panelStyle.Width(width).Render(strings.Join(rows, "\n"))
}

func (m *Model) renderLogsPanel(width int) string {
	start := len(m.logMessages) - 8
	if start < 0 {
		start = 0
	}

	lines := []string{panelTitleStyle.Render("EVENTS")}
	for _, msg := range m.logMessages[start:] {
		text := msg.Message
		if limit := width - 20; limit > 3 && len(text) > limit {
			text = text[:limit-3] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s %s",
			logTimestampStyle.Render(msg.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(msg.Color).Render(text),
		))
	}
	if len(lines) == 1 {
		lines = append(lines, dimStyle.Render("No events yet..."))
	}

	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	help := `  q / ctrl+c  stop the run (press again to leave)
  ctrl+l      clear events
  ?           toggle this help`
	return helpStyle.Render(help)
}
