// Package downloader fetches and stores the images of resolved panoramas.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/panorama"
	"streetviewdl/pkg/ratelimit"
	"streetviewdl/pkg/retry"
	"streetviewdl/pkg/stats"
	"streetviewdl/pkg/streetview"
)

// Skip reasons
const (
	ReasonMetadataOnly = "metadata_only"
	ReasonExists       = "exists"
)

// ImageFetcher fetches one heading of a panorama
type ImageFetcher interface {
	Image(ctx context.Context, panoID string, heading float64) (*streetview.Image, error)
}

// ArtifactStore persists images and panorama metadata
type ArtifactStore interface {
	ImagePath(panoID string, heading float64) (string, bool)
	SaveImage(ctx context.Context, img *streetview.Image) (string, int64, error)
	SaveMetadata(ctx context.Context, rec panorama.Record, images []string) error
}

// Options selects what to download for each panorama
type Options struct {
	// Headings to fetch for every panorama. Empty means one image at the
	// panorama's front-facing heading.
	Headings          []float64
	MetadataOnly      bool
	OverwriteExisting bool
}

// Status is the outcome of one panorama job
type Status int

const (
	Success Status = iota
	Skipped
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result describes what happened to one panorama
type Result struct {
	PanoID string
	Status Status
	// Reason is set for Skipped results
	Reason string
	// Paths of every image of this panorama on disk, new or pre-existing
	Paths    []string
	Bytes    int64
	Attempts int
	Kind     errs.ErrorType
	Err      error
	Duration time.Duration
}

func cancelled(panoID string) Result {
	return Result{PanoID: panoID, Status: Cancelled, Kind: errs.ErrorTypeCancelled, Err: errs.ErrCancelled}
}

// Config holds the collaborators of an Orchestrator
type Config struct {
	Concurrency int
	Limiter     ratelimit.Limiter
	Policy      *retry.Policy
	Stats       *stats.Run
	Logger      logger.Logger
}

// Orchestrator downloads panoramas on a bounded worker pool
type Orchestrator struct {
	fetcher ImageFetcher
	store   ArtifactStore
	workers int
	limiter ratelimit.Limiter
	policy  *retry.Policy
	stats   *stats.Run
	logger  logger.Logger
}

// New creates an Orchestrator
func New(fetcher ImageFetcher, store ArtifactStore, cfg Config) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		store:   store,
		workers: cfg.Concurrency,
		limiter: cfg.Limiter,
		policy:  cfg.Policy,
		stats:   cfg.Stats,
		logger:  logger.OrNop(cfg.Logger),
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	if o.limiter == nil {
		o.limiter = ratelimit.Unlimited{}
	}
	if o.policy == nil {
		o.policy = retry.DefaultPolicy()
	}
	if o.stats == nil {
		o.stats = stats.New()
	}
	return o
}

// Download processes every record and returns one result per record in
// input order. Records not started before ctx is cancelled come back
// Cancelled; images already being fetched are finished and stored.
func (o *Orchestrator) Download(ctx context.Context, records []panorama.Record, opts Options) []Result {
	results := make([]Result, len(records))

	logger.LogStage(o.logger, "download", "started", map[string]interface{}{
		"panoramas":     len(records),
		"workers":       o.workers,
		"metadata_only": opts.MetadataOnly,
		"headings":      len(opts.Headings),
	})

	if opts.MetadataOnly {
		for i, rec := range records {
			if ctx.Err() != nil {
				results[i] = cancelled(rec.ID)
				o.keep(ctx, rec)
			} else {
				results[i] = o.metadataOnly(ctx, rec)
			}
			o.count(results[i])
		}
		o.finish(results)
		return results
	}

	pool := NewWorkerPool(ctx, o.workers, func(ctx context.Context, job Job, workerID int) Result {
		return o.process(ctx, job.Record, opts)
	}, o.logger)
	pool.Start()

	done := make(chan struct{})
	seen := make([]bool, len(records))
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results[r.index] = r.result
			seen[r.index] = true
		}
	}()

	for i, rec := range records {
		if !pool.Submit(Job{Index: i, Record: rec}) {
			break
		}
	}
	pool.Stop()
	<-done

	for i, rec := range records {
		if !seen[i] {
			results[i] = cancelled(rec.ID)
			o.keep(ctx, rec)
		}
		o.count(results[i])
	}

	o.finish(results)
	return results
}

func (o *Orchestrator) metadataOnly(ctx context.Context, rec panorama.Record) Result {
	start := time.Now()
	res := Result{PanoID: rec.ID, Status: Skipped, Reason: ReasonMetadataOnly}
	if err := o.store.SaveMetadata(ctx, rec, nil); err != nil {
		res.Status = Failed
		res.Reason = ""
		res.Err = err
		res.Kind = errs.ErrorTypeStorage
	}
	res.Duration = time.Since(start)
	logger.LogDownload(o.logger, rec.ID, rec.FrontHeading(), res.Status.String(), res.Err)
	return res
}

// keep records the metadata of a panorama whose download was cancelled.
// The row needs no network call, so it is written even after ctx ends.
func (o *Orchestrator) keep(ctx context.Context, rec panorama.Record) {
	if err := o.store.SaveMetadata(context.WithoutCancel(ctx), rec, nil); err != nil {
		o.logger.WithError(err).WithField("pano_id", rec.ID).Warn("Failed to save metadata of cancelled panorama")
	}
}

func headingsFor(rec panorama.Record, opts Options) []float64 {
	if len(opts.Headings) > 0 {
		return opts.Headings
	}
	return []float64{rec.FrontHeading()}
}

// process downloads every requested heading of one panorama and records its
// metadata. The first heading that fails ends the job.
func (o *Orchestrator) process(ctx context.Context, rec panorama.Record, opts Options) Result {
	start := time.Now()
	res := Result{PanoID: rec.ID}
	detached := context.WithoutCancel(ctx)

	downloaded, existing := 0, 0
	for _, heading := range headingsFor(rec, opts) {
		if ctx.Err() != nil {
			res.Status = Cancelled
			res.Kind = errs.ErrorTypeCancelled
			res.Err = errs.ErrCancelled
			break
		}

		if !opts.OverwriteExisting {
			if path, ok := o.store.ImagePath(rec.ID, heading); ok {
				res.Paths = append(res.Paths, path)
				existing++
				o.stats.AddImageExisting()
				logger.LogDownload(o.logger, rec.ID, heading, "skipped", nil)
				continue
			}
		}

		img, attempts, err := retry.DoWithResult(ctx, o.policy, func(ctx context.Context, attempt int) (*streetview.Image, error) {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: waiting for rate limiter: %v", errs.ErrCancelled, err)
			}
			o.stats.AddImageCall()
			return o.fetcher.Image(detached, rec.ID, heading)
		})
		res.Attempts += attempts

		if err == nil {
			var path string
			var n int64
			path, n, err = o.store.SaveImage(detached, img)
			if err != nil {
				err = &errs.Error{Type: errs.ErrorTypeStorage, Message: err.Error()}
			} else {
				res.Paths = append(res.Paths, path)
				res.Bytes += n
				downloaded++
				o.stats.AddImage(n)
				logger.LogDownload(o.logger, rec.ID, heading, "success", nil)
				continue
			}
		}

		if errors.Is(err, errs.ErrCancelled) {
			res.Status = Cancelled
			res.Kind = errs.ErrorTypeCancelled
		} else {
			res.Status = Failed
			res.Kind = errs.TypeOf(err)
			logger.LogDownload(o.logger, rec.ID, heading, "failed", err)
		}
		res.Err = err
		break
	}

	if res.Err == nil {
		if downloaded == 0 && existing > 0 {
			res.Status = Skipped
			res.Reason = ReasonExists
		} else {
			res.Status = Success
		}
	}

	if err := o.store.SaveMetadata(detached, rec, res.Paths); err != nil && res.Err == nil {
		res.Status = Failed
		res.Kind = errs.ErrorTypeStorage
		res.Err = err
	}

	res.Duration = time.Since(start)
	return res
}

func (o *Orchestrator) count(r Result) {
	switch r.Status {
	case Success:
		o.stats.AddDownloadSucceeded()
	case Skipped:
		o.stats.AddDownloadSkipped()
	case Failed:
		o.stats.AddDownloadFailed()
	case Cancelled:
		o.stats.AddDownloadCancelled()
	}
}

func (o *Orchestrator) finish(results []Result) {
	counts := map[string]interface{}{}
	for _, r := range results {
		key := r.Status.String()
		n, _ := counts[key].(int)
		counts[key] = n + 1
	}
	logger.LogStage(o.logger, "download", "finished", counts)
}
