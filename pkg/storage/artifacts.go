package storage

import (
	"bytes"
	"context"

	"streetviewdl/pkg/metadata"
	"streetviewdl/pkg/panorama"
	"streetviewdl/pkg/streetview"
)

// MetadataWriter persists panorama rows
type MetadataWriter interface {
	Put(ctx context.Context, p metadata.Panorama) error
}

// Artifacts stores images on disk and panorama rows in the metadata
// database for one run
type Artifacts struct {
	images *Manager
	meta   MetadataWriter
	runID  string
}

// NewArtifacts combines an image manager and a metadata writer
func NewArtifacts(images *Manager, meta MetadataWriter, runID string) *Artifacts {
	return &Artifacts{images: images, meta: meta, runID: runID}
}

// ImagePath returns the stored file for a heading, if any
func (a *Artifacts) ImagePath(panoID string, heading float64) (string, bool) {
	return a.images.ImagePath(panoID, heading)
}

// SaveImage writes a fetched image
func (a *Artifacts) SaveImage(_ context.Context, img *streetview.Image) (string, int64, error) {
	return a.images.SaveImage(bytes.NewReader(img.Data), img.PanoID, img.Heading, img.Extension())
}

// SaveMetadata writes the panorama row with its image paths
func (a *Artifacts) SaveMetadata(ctx context.Context, rec panorama.Record, images []string) error {
	return a.meta.Put(ctx, metadata.FromRecord(rec, images, a.runID))
}
