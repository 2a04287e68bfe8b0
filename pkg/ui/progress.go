package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
	barWidth      = 20
)

// Bar renders done/total as a fixed width bar. A zero total renders empty.
func Bar(done, total int64) string {
	filled := 0
	if total > 0 {
		filled = int(float64(done) / float64(total) * barWidth)
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
}

// Rate returns n per second over elapsed
func Rate(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// ETA estimates the time left for total items when done took elapsed
func ETA(done, total int64, elapsed time.Duration) string {
	if done <= 0 {
		return "calculating..."
	}
	if done >= total {
		return "0s"
	}
	left := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	return FormatDuration(left)
}

// FormatDuration formats a duration as 42s, 3m7s or 2h15m
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
