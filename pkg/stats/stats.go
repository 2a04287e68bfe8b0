// Package stats accumulates per-run counters shared by the pipeline stages.
package stats

import (
	"sync/atomic"
	"time"
)

// Run holds the counters of one run. Every method is safe for concurrent use.
// The zero value is not ready; use New.
type Run struct {
	started time.Time

	pointsSampled   atomic.Int64
	pointsResolved  atomic.Int64
	pointsNotFound  atomic.Int64
	pointsFailed    atomic.Int64
	pointsCancelled atomic.Int64
	cacheHits       atomic.Int64
	metadataCalls   atomic.Int64
	panoramas       atomic.Int64

	imageCalls        atomic.Int64
	imagesDownloaded  atomic.Int64
	imagesExisting    atomic.Int64
	bytesWritten      atomic.Int64
	downloadsOK       atomic.Int64
	downloadsSkipped  atomic.Int64
	downloadsFailed   atomic.Int64
	downloadsCanceled atomic.Int64
}

// Snapshot is a point-in-time copy of a Run
type Snapshot struct {
	PointsSampled   int64 `json:"points_sampled"`
	PointsResolved  int64 `json:"points_resolved"`
	PointsNotFound  int64 `json:"points_not_found"`
	PointsFailed    int64 `json:"points_failed"`
	PointsCancelled int64 `json:"points_cancelled"`
	CacheHits       int64 `json:"cache_hits"`
	MetadataCalls   int64 `json:"metadata_calls"`
	Panoramas       int64 `json:"panoramas"`

	ImageCalls       int64 `json:"image_calls"`
	ImagesDownloaded int64 `json:"images_downloaded"`
	ImagesExisting   int64 `json:"images_existing"`
	BytesWritten     int64 `json:"bytes_written"`

	// Per panorama download outcomes
	DownloadsSucceeded int64 `json:"downloads_succeeded"`
	DownloadsSkipped   int64 `json:"downloads_skipped"`
	DownloadsFailed    int64 `json:"downloads_failed"`
	DownloadsCancelled int64 `json:"downloads_cancelled"`

	Elapsed time.Duration `json:"elapsed"`
}

// New starts a run clock
func New() *Run {
	return &Run{started: time.Now()}
}

func (r *Run) AddSampled(n int64)    { r.pointsSampled.Add(n) }
func (r *Run) AddResolved()          { r.pointsResolved.Add(1) }
func (r *Run) AddNotFound()          { r.pointsNotFound.Add(1) }
func (r *Run) AddResolveFailed()     { r.pointsFailed.Add(1) }
func (r *Run) AddResolveCancelled()  { r.pointsCancelled.Add(1) }
func (r *Run) AddCacheHit()          { r.cacheHits.Add(1) }
func (r *Run) AddMetadataCall()      { r.metadataCalls.Add(1) }
func (r *Run) AddPanorama()          { r.panoramas.Add(1) }
func (r *Run) AddImageCall()         { r.imageCalls.Add(1) }
func (r *Run) AddImageExisting()     { r.imagesExisting.Add(1) }
func (r *Run) AddDownloadSucceeded() { r.downloadsOK.Add(1) }
func (r *Run) AddDownloadSkipped()   { r.downloadsSkipped.Add(1) }
func (r *Run) AddDownloadFailed()    { r.downloadsFailed.Add(1) }
func (r *Run) AddDownloadCancelled() { r.downloadsCanceled.Add(1) }

// AddImage counts one stored image of size bytes
func (r *Run) AddImage(bytes int64) {
	r.imagesDownloaded.Add(1)
	r.bytesWritten.Add(bytes)
}

// MetadataCalls returns the number of metadata requests sent so far
func (r *Run) MetadataCalls() int64 { return r.metadataCalls.Load() }

// ImageCalls returns the number of image requests sent so far
func (r *Run) ImageCalls() int64 { return r.imageCalls.Load() }

// Snapshot copies the current counters
func (r *Run) Snapshot() Snapshot {
	return Snapshot{
		PointsSampled:      r.pointsSampled.Load(),
		PointsResolved:     r.pointsResolved.Load(),
		PointsNotFound:     r.pointsNotFound.Load(),
		PointsFailed:       r.pointsFailed.Load(),
		PointsCancelled:    r.pointsCancelled.Load(),
		CacheHits:          r.cacheHits.Load(),
		MetadataCalls:      r.metadataCalls.Load(),
		Panoramas:          r.panoramas.Load(),
		ImageCalls:         r.imageCalls.Load(),
		ImagesDownloaded:   r.imagesDownloaded.Load(),
		ImagesExisting:     r.imagesExisting.Load(),
		BytesWritten:       r.bytesWritten.Load(),
		DownloadsSucceeded: r.downloadsOK.Load(),
		DownloadsSkipped:   r.downloadsSkipped.Load(),
		DownloadsFailed:    r.downloadsFailed.Load(),
		DownloadsCancelled: r.downloadsCanceled.Load(),
		Elapsed:            time.Since(r.started),
	}
}

// Looked returns the number of sample points that reached a final lookup outcome
func (s Snapshot) Looked() int64 {
	return s.PointsResolved + s.PointsNotFound + s.PointsFailed
}

// Finished returns the number of panoramas with a final download outcome
func (s Snapshot) Finished() int64 {
	return s.DownloadsSucceeded + s.DownloadsSkipped + s.DownloadsFailed + s.DownloadsCancelled
}
