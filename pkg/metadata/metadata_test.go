package metadata

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/panorama"
	"streetviewdl/pkg/sample"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "db", "metadata.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestPutGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := Panorama{
		ID:        "pano-1",
		Lat:       48.8584,
		Lon:       2.2945,
		Date:      "2019-07",
		Copyright: "© Google",
		Headings:  []float64{90, 270},
		Images:    []string{"out/pano-1_90.jpg"},
		Origins:   3,
		RunID:     "run-a",
	}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, "pano-1")
	require.NoError(t, err)
	assert.Equal(t, p.Lat, got.Lat)
	assert.Equal(t, p.Lon, got.Lon)
	assert.Equal(t, p.Headings, got.Headings)
	assert.Equal(t, p.Images, got.Images)
	assert.Equal(t, 3, got.Origins)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = store.Get(ctx, "missing")
	assert.True(t, stderrors.Is(err, errs.ErrNotFound))
}

func TestPutUpserts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Panorama{ID: "p", Lat: 1, Lon: 2}))
	require.NoError(t, store.Put(ctx, Panorama{ID: "p", Lat: 1, Lon: 2, Images: []string{"a.jpg", "b.jpg"}}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.Images)
	assert.Equal(t, []float64{}, got.Headings)

	require.NoError(t, store.Put(ctx, Panorama{ID: "p", Lat: 1, Lon: 2, RunID: "later"}))
	got, err = store.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.Images, "a row without images keeps earlier paths")
	assert.Equal(t, "later", got.RunID)

	require.NoError(t, store.Put(ctx, Panorama{ID: "p", Lat: 1, Lon: 2, Images: []string{"c.jpg"}}))
	got, err = store.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.jpg"}, got.Images)
}

func TestListOrderedAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.sqlite")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Put(ctx, Panorama{ID: id}))
	}
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestFromRecord(t *testing.T) {
	reg := panorama.NewRegistry()
	reg.Upsert(panorama.Record{ID: "x", Location: orb.Point{2.5, 41.5}, Date: "2018-01"}, sample.Point{Bearing: 45})
	reg.Upsert(panorama.Record{ID: "x"}, sample.Point{Bearing: 225})
	rec, _ := reg.Get("x")

	p := FromRecord(rec, []string{"x_45.jpg"}, "run-1")
	assert.Equal(t, 41.5, p.Lat)
	assert.Equal(t, 2.5, p.Lon)
	assert.Equal(t, []float64{45, 225}, p.Headings)
	assert.Equal(t, 2, p.Origins)
	assert.Equal(t, "run-1", p.RunID)
}

func TestExportGeoJSON(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Panorama{ID: "a", Lat: 10, Lon: 20, Headings: []float64{0}}))
	require.NoError(t, store.Put(ctx, Panorama{ID: "b", Lat: 11, Lon: 21}))

	out := filepath.Join(t.TempDir(), "export", "panoramas.geojson")
	n, err := store.ExportGeoJSON(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{20, 10}, fc.Features[0].Geometry)
	assert.Equal(t, "a", fc.Features[0].Properties["pano_id"])
}
