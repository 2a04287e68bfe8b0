package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"streetviewdl/pkg/pipeline"
	"streetviewdl/pkg/stats"
)

// ProgressDisplay redraws a single status line per stage
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	stage   string
	total   int
	drawn   bool
	isDebug bool
}

// NewProgressDisplay writes to out. In debug mode every update is printed
// on its own line so it interleaves with log output.
func NewProgressDisplay(out io.Writer, debug bool) *ProgressDisplay {
	return &ProgressDisplay{out: out, isDebug: debug}
}

// Stage starts a new status line
func (p *ProgressDisplay) Stage(name string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
	p.stage = name
	p.total = total
}

// Update redraws the status line from a snapshot
func (p *ProgressDisplay) Update(stage string, snap stats.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := p.format(stage, snap)
	if p.isDebug {
		fmt.Fprintln(p.out, line)
		return
	}
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
	p.drawn = true
}

// Close ends the current line
func (p *ProgressDisplay) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func (p *ProgressDisplay) format(stage string, snap stats.Snapshot) string {
	var parts []string

	switch stage {
	case pipeline.StageResolve:
		parts = append(parts,
			fmt.Sprintf("%s points", humanize.Comma(snap.Looked())),
			fmt.Sprintf("%s panoramas", humanize.Comma(snap.Panoramas)),
			fmt.Sprintf("%.1f/s", Rate(snap.Looked(), snap.Elapsed)),
		)
		if snap.CacheHits > 0 {
			parts = append(parts, Dim(fmt.Sprintf("%s cached", humanize.Comma(snap.CacheHits))))
		}
		if snap.PointsNotFound > 0 {
			parts = append(parts, Dim(fmt.Sprintf("%s without imagery", humanize.Comma(snap.PointsNotFound))))
		}
		if snap.PointsFailed > 0 {
			parts = append(parts, Red(fmt.Sprintf("%d failed", snap.PointsFailed)))
		}

	case pipeline.StageDownload:
		done, total := snap.Finished(), int64(p.total)
		parts = append(parts,
			fmt.Sprintf("[%s] %d/%d", Bar(done, total), done, total),
			humanize.Bytes(uint64(snap.BytesWritten)),
		)
		if snap.ImagesExisting > 0 {
			parts = append(parts, Dim(fmt.Sprintf("%d existing", snap.ImagesExisting)))
		}
		if snap.DownloadsFailed > 0 {
			parts = append(parts, Red(fmt.Sprintf("%d failed", snap.DownloadsFailed)))
		}

	default:
		parts = append(parts, FormatDuration(snap.Elapsed))
	}

	return Cyan(stage) + " " + strings.Join(parts, " • ")
}

// PrintSummary writes the final report of a run
func PrintSummary(out io.Writer, r *pipeline.Report) {
	s := r.Stats

	if r.Cancelled {
		fmt.Fprintf(out, "\n%s Run %s interrupted, partial results kept\n", Yellow("⚠"), r.RunID)
	} else {
		fmt.Fprintf(out, "\n%s Run %s finished in %s\n", Green("✓"), r.RunID, FormatDuration(s.Elapsed))
	}

	fmt.Fprintf(out, "  %s %s sample points, %s panoramas found (%s lookups, %s cached)\n",
		Dim("•"),
		humanize.Comma(s.PointsSampled),
		humanize.Comma(int64(r.Panoramas)),
		humanize.Comma(s.MetadataCalls),
		humanize.Comma(s.CacheHits),
	)
	if s.PointsNotFound > 0 {
		fmt.Fprintf(out, "  %s %s points without imagery\n", Dim("•"), humanize.Comma(s.PointsNotFound))
	}
	fmt.Fprintf(out, "  %s %s images downloaded (%s), %s already on disk\n",
		Dim("•"),
		humanize.Comma(s.ImagesDownloaded),
		humanize.Bytes(uint64(s.BytesWritten)),
		humanize.Comma(s.ImagesExisting),
	)

	if n := len(r.ResolveFailures); n > 0 {
		fmt.Fprintf(out, "  %s %d lookups failed\n", Red("✗"), n)
		for i, f := range r.ResolveFailures {
			if i == 5 {
				fmt.Fprintf(out, "      %s\n", Dim(fmt.Sprintf("... and %d more", n-5)))
				break
			}
			fmt.Fprintf(out, "      %s %s: %v\n", Dim(f.Point.Key()), f.Kind(), f.Err)
		}
	}
	if n := len(r.DownloadFailures); n > 0 {
		fmt.Fprintf(out, "  %s %d panoramas failed to download\n", Red("✗"), n)
		for i, f := range r.DownloadFailures {
			if i == 5 {
				fmt.Fprintf(out, "      %s\n", Dim(fmt.Sprintf("... and %d more", n-5)))
				break
			}
			fmt.Fprintf(out, "      %s %s: %v\n", Dim(f.PanoID), f.Kind, f.Err)
		}
	}
	if s.PointsCancelled > 0 || s.DownloadsCancelled > 0 {
		fmt.Fprintf(out, "  %s %d lookups and %d downloads not started\n", Dim("•"), s.PointsCancelled, s.DownloadsCancelled)
	}
	if r.Exported != "" {
		fmt.Fprintf(out, "  %s panoramas exported to %s\n", Dim("•"), r.Exported)
	}
}
