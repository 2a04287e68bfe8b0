// Package resolver maps sample points to panoramas and deduplicates them.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"streetviewdl/pkg/checkpoint"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/panorama"
	"streetviewdl/pkg/ratelimit"
	"streetviewdl/pkg/retry"
	"streetviewdl/pkg/sample"
	"streetviewdl/pkg/stats"
	"streetviewdl/pkg/streetview"
)

// MetadataFetcher looks up the panorama nearest to a location
type MetadataFetcher interface {
	Metadata(ctx context.Context, lat, lon, radius float64) (*streetview.Metadata, error)
}

// Cache remembers lookup outcomes across runs
type Cache interface {
	Lookup(key string) (checkpoint.Entry, bool)
	Store(key string, entry checkpoint.Entry)
}

// Status is the outcome of resolving one sample point
type Status int

const (
	Resolved Status = iota
	NotFound
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Resolution is the outcome for a single sample point
type Resolution struct {
	Point     sample.Point
	Status    Status
	Metadata  *streetview.Metadata
	Attempts  int
	FromCache bool
	// Err is set for Failed and Cancelled
	Err error
}

// Kind returns the error type of a failed resolution
func (r Resolution) Kind() errs.ErrorType {
	return errs.TypeOf(r.Err)
}

// Config holds the collaborators of a Resolver. Only the fetcher passed to
// New is required.
type Config struct {
	Radius      float64
	Concurrency int
	Limiter     ratelimit.Limiter
	Policy      *retry.Policy
	Cache       Cache
	Stats       *stats.Run
	Logger      logger.Logger
}

// Resolver issues metadata lookups with rate limiting, retries and an
// optional cache
type Resolver struct {
	client      MetadataFetcher
	radius      float64
	concurrency int
	limiter     ratelimit.Limiter
	policy      *retry.Policy
	cache       Cache
	stats       *stats.Run
	logger      logger.Logger
}

// New creates a Resolver
func New(client MetadataFetcher, cfg Config) *Resolver {
	r := &Resolver{
		client:      client,
		radius:      cfg.Radius,
		concurrency: cfg.Concurrency,
		limiter:     cfg.Limiter,
		policy:      cfg.Policy,
		cache:       cfg.Cache,
		stats:       cfg.Stats,
		logger:      logger.OrNop(cfg.Logger),
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if r.limiter == nil {
		r.limiter = ratelimit.Unlimited{}
	}
	if r.policy == nil {
		r.policy = retry.DefaultPolicy()
	}
	if r.stats == nil {
		r.stats = stats.New()
	}
	return r
}

// Resolve looks up the panorama for one point. No request is started once
// ctx is cancelled, but a request already on the wire runs to completion.
func (r *Resolver) Resolve(ctx context.Context, p sample.Point) Resolution {
	res := Resolution{Point: p}
	if err := ctx.Err(); err != nil {
		res.Status = Cancelled
		res.Err = fmt.Errorf("%w: %v", errs.ErrCancelled, err)
		return res
	}

	key := checkpoint.Key(p.Lat(), p.Lon(), r.radius)
	if r.cache != nil {
		if entry, ok := r.cache.Lookup(key); ok {
			r.stats.AddCacheHit()
			res.FromCache = true
			if entry.Status == checkpoint.StatusFound {
				res.Status = Resolved
				res.Metadata = &streetview.Metadata{
					PanoID:    entry.PanoID,
					Location:  orb.Point{entry.Lon, entry.Lat},
					Date:      entry.Date,
					Copyright: entry.Copyright,
				}
			} else {
				res.Status = NotFound
			}
			return res
		}
	}

	meta, attempts, err := retry.DoWithResult(ctx, r.policy, func(ctx context.Context, attempt int) (*streetview.Metadata, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %v", errs.ErrCancelled, err)
		}
		r.stats.AddMetadataCall()
		return r.client.Metadata(context.WithoutCancel(ctx), p.Lat(), p.Lon(), r.radius)
	})
	res.Attempts = attempts

	switch {
	case err == nil:
		res.Status = Resolved
		res.Metadata = meta
		r.remember(key, checkpoint.Entry{
			Status:    checkpoint.StatusFound,
			PanoID:    meta.PanoID,
			Lat:       meta.Location.Lat(),
			Lon:       meta.Location.Lon(),
			Date:      meta.Date,
			Copyright: meta.Copyright,
		})
	case errors.Is(err, errs.ErrNotFound):
		res.Status = NotFound
		r.remember(key, checkpoint.Entry{Status: checkpoint.StatusNotFound})
	case errors.Is(err, errs.ErrCancelled):
		res.Status = Cancelled
		res.Err = err
	default:
		res.Status = Failed
		res.Err = err
	}

	var logErr error
	if res.Status == Failed {
		logErr = res.Err
	}
	panoID := ""
	if res.Metadata != nil {
		panoID = res.Metadata.PanoID
	}
	logger.LogResolution(r.logger, p.Key(), res.Status.String(), panoID, res.Attempts, logErr)

	return res
}

func (r *Resolver) remember(key string, entry checkpoint.Entry) {
	if r.cache != nil {
		r.cache.Store(key, entry)
	}
}

// Result is the outcome of resolving a sequence of points
type Result struct {
	Registry *panorama.Registry
	// Points is the number of sample points taken from the sequence
	Points int
	// Failures holds every Failed resolution in point order
	Failures []Resolution
	// Cancelled is set when ctx ended before the sequence was exhausted
	Cancelled bool
}

// ResolveAll resolves every point of seq with bounded concurrency and folds
// the outcomes into a fresh registry. It stops taking points once ctx is
// cancelled and waits for lookups already started.
func (r *Resolver) ResolveAll(ctx context.Context, seq iter.Seq[sample.Point]) *Result {
	out := &Result{Registry: panorama.NewRegistry()}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	logger.LogStage(r.logger, "resolve", "started", map[string]interface{}{
		"concurrency": r.concurrency,
		"radius":      r.radius,
	})

	for p := range seq {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}
		out.Points++
		r.stats.AddSampled(1)

		g.Go(func() error {
			res := r.Resolve(ctx, p)
			r.fold(out, &mu, res)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		out.Cancelled = true
	}
	sort.Slice(out.Failures, func(i, j int) bool {
		return pointLess(out.Failures[i].Point, out.Failures[j].Point)
	})

	logger.LogStage(r.logger, "resolve", "finished", map[string]interface{}{
		"points":    out.Points,
		"panoramas": out.Registry.Len(),
		"failures":  len(out.Failures),
		"cancelled": out.Cancelled,
	})

	return out
}

func (r *Resolver) fold(out *Result, mu *sync.Mutex, res Resolution) {
	switch res.Status {
	case Resolved:
		r.stats.AddResolved()
		rec := panorama.Record{
			ID:        res.Metadata.PanoID,
			Location:  res.Metadata.Location,
			Date:      res.Metadata.Date,
			Copyright: res.Metadata.Copyright,
		}
		if out.Registry.Upsert(rec, res.Point) {
			r.stats.AddPanorama()
		}
	case NotFound:
		r.stats.AddNotFound()
	case Failed:
		r.stats.AddResolveFailed()
		mu.Lock()
		out.Failures = append(out.Failures, res)
		mu.Unlock()
	case Cancelled:
		r.stats.AddResolveCancelled()
	}
}

func pointLess(a, b sample.Point) bool {
	if a.WayID != b.WayID {
		return a.WayID < b.WayID
	}
	if a.Part != b.Part {
		return a.Part < b.Part
	}
	return a.Index < b.Index
}
