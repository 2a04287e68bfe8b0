// Package pipeline wires the clip, sample, resolve and download stages into
// one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"streetviewdl/internal/downloader"
	"streetviewdl/pkg/aoi"
	"streetviewdl/pkg/checkpoint"
	"streetviewdl/pkg/clip"
	"streetviewdl/pkg/config"
	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/metadata"
	"streetviewdl/pkg/network"
	"streetviewdl/pkg/panorama"
	"streetviewdl/pkg/ratelimit"
	"streetviewdl/pkg/resolver"
	"streetviewdl/pkg/retry"
	"streetviewdl/pkg/sample"
	"streetviewdl/pkg/stats"
	"streetviewdl/pkg/storage"
	"streetviewdl/pkg/streetview"
)

// Stage names reported to observers and logs
const (
	StageClip     = "clip"
	StageResolve  = "resolve"
	StageDownload = "download"
)

// Client is the imagery service as seen by both network stages
type Client interface {
	resolver.MetadataFetcher
	downloader.ImageFetcher
}

// Observer receives progress while a run is going. Update is called from a
// single goroutine.
type Observer interface {
	Stage(name string, total int)
	Update(stage string, snap stats.Snapshot)
}

// Input describes one run
type Input struct {
	Extract string
	AOI     string
	// BBox is used when AOI is empty
	BBox     string
	Spacing  float64
	Mode     sample.Mode
	Classes  map[string]bool
	Download downloader.Options
	// GeoJSON, when set, receives an export of the metadata database
	GeoJSON string
}

// InputFromConfig builds the run input from configuration
func InputFromConfig(cfg *config.Config) (Input, error) {
	mode, err := sample.ParseMode(cfg.Sampling.Mode)
	if err != nil {
		return Input{}, err
	}
	return Input{
		Extract: cfg.Extract.Path,
		AOI:     cfg.Extract.AOI,
		BBox:    cfg.Extract.BBox,
		Spacing: cfg.Sampling.Spacing,
		Mode:    mode,
		Download: downloader.Options{
			Headings:          cfg.Download.Headings,
			MetadataOnly:      cfg.Download.MetadataOnly,
			OverwriteExisting: cfg.Download.OverwriteExisting,
		},
		GeoJSON: cfg.Output.GeoJSON,
	}, nil
}

// Report summarises a finished or cancelled run
type Report struct {
	RunID     string
	Stats     stats.Snapshot
	Cancelled bool
	Panoramas int
	// Records are the panoramas resolved by the run, complete or partial.
	// Each one has a metadata row even when its images were not fetched.
	Records          []panorama.Record
	ResolveFailures  []resolver.Resolution
	DownloadFailures []downloader.Result
	// Exported is the GeoJSON path written, if any
	Exported string
}

// Deps are the collaborators of a Pipeline. Cache and Observer are optional.
type Deps struct {
	Client   Client
	Limiter  ratelimit.Limiter
	Policy   *retry.Policy
	Cache    *checkpoint.Manager
	Images   *storage.Manager
	Metadata *metadata.Store
	Observer Observer
	Logger   logger.Logger
}

// Pipeline runs the stages with shared collaborators
type Pipeline struct {
	cfg      *config.Config
	deps     Deps
	logger   logger.Logger
	interval time.Duration
}

// New creates a pipeline from explicit collaborators
func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.FromConfig(cfg.RateLimit)
	}
	if deps.Policy == nil {
		deps.Policy = retry.FromConfig(cfg.Retry, deps.Logger)
	}
	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.OrNop(deps.Logger),
		interval: 250 * time.Millisecond,
	}
}

// Open builds every collaborator from configuration
func Open(cfg *config.Config, log logger.Logger) (*Pipeline, error) {
	client, err := streetview.NewClient(cfg.Imagery, log)
	if err != nil {
		return nil, err
	}

	cache, err := checkpoint.FromConfig(cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup cache: %w", err)
	}

	images, err := storage.NewManager(cfg.Output.Directory)
	if err != nil {
		return nil, err
	}
	logger.OrNop(log).WithFields(map[string]interface{}{
		"directory":       cfg.Output.Directory,
		"existing_images": images.GetDownloadedCount(),
	}).Info("Opened output directory")

	store, err := metadata.Open(cfg.MetadataDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	return New(cfg, Deps{
		Client:   client,
		Cache:    cache,
		Images:   images,
		Metadata: store,
		Logger:   log,
	}), nil
}

// SetObserver attaches a progress observer
func (p *Pipeline) SetObserver(o Observer) {
	p.deps.Observer = o
}

// Close saves the lookup cache and closes the metadata database
func (p *Pipeline) Close() error {
	var errs []error
	if p.deps.Cache != nil {
		errs = append(errs, p.deps.Cache.Save())
	}
	if p.deps.Metadata != nil {
		errs = append(errs, p.deps.Metadata.Close())
	}
	return errors.Join(errs...)
}

// LoadArea reads the area of interest from a GeoJSON file or a bbox string
func LoadArea(in Input) (*aoi.Area, error) {
	switch {
	case in.AOI != "":
		return aoi.Load(in.AOI)
	case in.BBox != "":
		return aoi.ParseBBox(in.BBox)
	default:
		return nil, fmt.Errorf("no area of interest: set an AOI file or a bbox")
	}
}

// Prepare loads the area and the extract and clips one to the other
func (p *Pipeline) Prepare(ctx context.Context, in Input) (*network.Network, error) {
	area, err := LoadArea(in)
	if err != nil {
		return nil, err
	}
	if in.Extract == "" {
		return nil, fmt.Errorf("no extract path configured")
	}

	bound := area.Bound()
	start := time.Now()
	net, err := network.Load(ctx, in.Extract, network.LoadOptions{Bound: &bound, Classes: in.Classes})
	if err != nil {
		return nil, err
	}

	clipped, err := clip.Clip(net, area)
	if err != nil {
		return nil, err
	}

	logger.LogStage(p.logger, StageClip, "finished", map[string]interface{}{
		"ways_in":     net.Len(),
		"ways_out":    clipped.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return clipped, nil
}

// Sample clips the extract and returns the lazy sample point sequence
func (p *Pipeline) Sample(ctx context.Context, in Input) (iter.Seq[sample.Point], error) {
	if err := sample.Validate(in.Spacing); err != nil {
		return nil, err
	}
	clipped, err := p.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	return sample.Generate(clipped, in.Spacing, in.Mode), nil
}

// Run executes a full run. Structural problems (unreadable inputs, CRS
// mismatch, empty clip) return an error before any network call. Per-item
// failures and cancellation are reported in the Report.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Report, error) {
	points, err := p.Sample(ctx, in)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	run := stats.New()
	report := &Report{RunID: runID}
	log := p.logger.WithField("run_id", runID)

	var cache resolver.Cache
	if p.deps.Cache != nil {
		cache = p.deps.Cache
	}

	res := resolver.New(p.deps.Client, resolver.Config{
		Radius:      p.cfg.Imagery.SearchRadius,
		Concurrency: p.cfg.Download.ResolveConcurrency,
		Limiter:     p.deps.Limiter,
		Policy:      p.deps.Policy,
		Cache:       cache,
		Stats:       run,
		Logger:      log,
	})

	stop := p.watch(StageResolve, 0, run)
	resolved := res.ResolveAll(ctx, points)
	stop()

	records := resolved.Registry.Records()
	report.Panoramas = len(records)
	report.Records = records
	report.ResolveFailures = resolved.Failures
	report.Cancelled = resolved.Cancelled

	if p.deps.Cache != nil {
		if err := p.deps.Cache.Save(); err != nil {
			log.WithError(err).Warn("Failed to save lookup cache")
		}
	}

	orchestrator := downloader.New(p.deps.Client, storage.NewArtifacts(p.deps.Images, p.deps.Metadata, runID), downloader.Config{
		Concurrency: p.cfg.Download.Concurrency,
		Limiter:     p.deps.Limiter,
		Policy:      p.deps.Policy,
		Stats:       run,
		Logger:      log,
	})

	stop = p.watch(StageDownload, len(records), run)
	results := orchestrator.Download(ctx, records, in.Download)
	stop()

	for _, r := range results {
		if r.Status == downloader.Failed {
			report.DownloadFailures = append(report.DownloadFailures, r)
		}
	}
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	if in.GeoJSON != "" {
		n, err := p.deps.Metadata.ExportGeoJSON(context.WithoutCancel(ctx), in.GeoJSON)
		if err != nil {
			log.WithError(err).Error("Failed to export panoramas")
		} else {
			report.Exported = in.GeoJSON
			log.WithFields(map[string]interface{}{"path": in.GeoJSON, "panoramas": n}).Info("Exported panoramas")
		}
	}

	report.Stats = run.Snapshot()
	logger.LogStage(log, "run", "finished", map[string]interface{}{
		"panoramas":         report.Panoramas,
		"resolve_failures":  len(report.ResolveFailures),
		"download_failures": len(report.DownloadFailures),
		"cancelled":         report.Cancelled,
	})
	return report, nil
}

// watch pushes snapshots to the observer until the returned func is called
func (p *Pipeline) watch(stage string, total int, run *stats.Run) func() {
	obs := p.deps.Observer
	if obs == nil {
		return func() {}
	}
	obs.Stage(stage, total)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				obs.Update(stage, run.Snapshot())
			case <-done:
				obs.Update(stage, run.Snapshot())
				return
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}
