package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetviewdl/pkg/config"
	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/storage"
	"streetviewdl/pkg/streetview"
)

const (
	testKey    = "test-key-0123456789abcdefghijklmnop"
	testSecret = "signing secret for tests"
)

// mockImageryServer serves the metadata and image endpoints with one
// panorama per grid cell and no coverage in the south west cell
type mockImageryServer struct {
	server *httptest.Server
	signer *streetview.Signer

	metadataRequests atomic.Int32
	imageRequests    atomic.Int32
	badRequests      atomic.Int32

	// failures still to inject
	metadataErrors atomic.Int32
	imageThrottles atomic.Int32

	mu     sync.Mutex
	panos  map[string]bool
	images map[string]int
}

func newMockImageryServer(t *testing.T) *mockImageryServer {
	t.Helper()

	signer, err := streetview.NewSigner(base64.URLEncoding.EncodeToString([]byte(testSecret)))
	require.NoError(t, err)

	m := &mockImageryServer{
		signer: signer,
		panos:  make(map[string]bool),
		images: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(streetview.MetadataEndpoint, m.handleMetadata)
	mux.HandleFunc(streetview.ImageEndpoint, m.handleImage)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

// authorized checks the key and recomputes the URL signature
func (m *mockImageryServer) authorized(r *http.Request) bool {
	raw := r.URL.RawQuery
	i := strings.LastIndex(raw, "&signature=")
	if i < 0 || r.URL.Query().Get("key") != testKey {
		return false
	}
	unsigned := &url.URL{Path: r.URL.Path, RawQuery: raw[:i]}
	return m.signer.Sign(unsigned).RawQuery == raw
}

func (m *mockImageryServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	m.metadataRequests.Add(1)
	if !m.authorized(r) {
		m.badRequests.Add(1)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if m.metadataErrors.Add(-1) >= 0 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	latText, lonText, _ := strings.Cut(r.URL.Query().Get("location"), ",")
	lat, err1 := strconv.ParseFloat(latText, 64)
	lon, err2 := strconv.ParseFloat(lonText, 64)
	if err1 != nil || err2 != nil {
		m.badRequests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if lat < cell && lon < cell {
		json.NewEncoder(w).Encode(map[string]interface{}{"status": streetview.StatusZeroResults})
		return
	}

	id := cellID(lat, lon)
	m.mu.Lock()
	m.panos[id] = true
	m.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    streetview.StatusOK,
		"pano_id":   id,
		"date":      "2022-05",
		"copyright": "© Test",
		"location":  map[string]float64{"lat": lat, "lng": lon},
	})
}

func (m *mockImageryServer) handleImage(w http.ResponseWriter, r *http.Request) {
	m.imageRequests.Add(1)
	if !m.authorized(r) {
		m.badRequests.Add(1)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if m.imageThrottles.Add(-1) >= 0 {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	pano := r.URL.Query().Get("pano")
	m.mu.Lock()
	m.images[pano]++
	m.mu.Unlock()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write([]byte("\xff\xd8\xff" + pano + r.URL.Query().Get("heading")))
}

func (m *mockImageryServer) servedPanos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.panos))
	for id := range m.panos {
		out = append(out, id)
	}
	return out
}

func imageryConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Imagery.APIKey = testKey
	cfg.Imagery.SigningSecret = base64.URLEncoding.EncodeToString([]byte(testSecret))
	cfg.Imagery.BaseURL = baseURL
	cfg.Imagery.Timeout = 5 * time.Second
	cfg.Extract.Path = writeGrid(t, dir, "")
	cfg.Extract.BBox = "0,0,0.009,0.009"
	cfg.Sampling.Spacing = 200
	cfg.Download.Headings = []float64{0, 180}
	cfg.Download.Concurrency = 4
	cfg.Download.ResolveConcurrency = 8
	cfg.RateLimit.RequestsPerMinute = 600000
	cfg.RateLimit.BurstSize = 1000
	cfg.Retry.MaxAttempts = 4
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Retry.Jitter = 0
	cfg.Output.Directory = filepath.Join(dir, "out")
	cfg.Output.GeoJSON = filepath.Join(dir, "panoramas.geojson")
	cfg.Cache.Path = filepath.Join(dir, "cache", "lookups.json")
	require.NoError(t, cfg.Validate())
	return cfg
}

func runOnce(t *testing.T, cfg *config.Config) *Report {
	t.Helper()

	p, err := Open(cfg, logger.NewTestLogger())
	require.NoError(t, err)

	in, err := InputFromConfig(cfg)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	return report
}

func TestRunAgainstImageryService(t *testing.T) {
	server := newMockImageryServer(t)
	server.metadataErrors.Store(2)
	server.imageThrottles.Store(3)
	cfg := imageryConfig(t, server.server.URL)

	report := runOnce(t, cfg)

	assert.Zero(t, server.badRequests.Load(), "every request carries the key and a valid signature")
	assert.False(t, report.Cancelled)
	assert.Empty(t, report.ResolveFailures, "server errors are retried")
	assert.Empty(t, report.DownloadFailures, "throttled downloads are retried")
	assert.Positive(t, report.Stats.PointsNotFound)

	panos := server.servedPanos()
	require.NotEmpty(t, panos)
	assert.Equal(t, len(panos), report.Panoramas)
	assert.Equal(t, int32(2*len(panos)+3), server.imageRequests.Load())

	images, err := storage.NewManager(cfg.Output.Directory)
	require.NoError(t, err)
	for _, id := range panos {
		assert.True(t, images.HasImage(id, 0), id)
		assert.True(t, images.HasImage(id, 180), id)
	}

	data, err := os.ReadFile(cfg.Output.GeoJSON)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, len(panos))
}

func TestRunResumesFromCache(t *testing.T) {
	server := newMockImageryServer(t)
	cfg := imageryConfig(t, server.server.URL)

	first := runOnce(t, cfg)
	require.Positive(t, first.Panoramas)
	metadataBefore := server.metadataRequests.Load()
	imagesBefore := server.imageRequests.Load()

	second := runOnce(t, cfg)

	assert.Equal(t, metadataBefore, server.metadataRequests.Load(), "lookups come from the cache")
	assert.Equal(t, imagesBefore, server.imageRequests.Load(), "images on disk are skipped")
	assert.Equal(t, first.Panoramas, second.Panoramas)
	assert.Equal(t, int64(first.Panoramas), second.Stats.DownloadsSkipped)
	assert.Positive(t, second.Stats.CacheHits)
}

func TestRunRejectedKey(t *testing.T) {
	server := newMockImageryServer(t)
	cfg := imageryConfig(t, server.server.URL)
	cfg.Imagery.APIKey = "wrong-key-0123456789abcdefghijklmno"

	report := runOnce(t, cfg)

	assert.Zero(t, report.Panoramas)
	assert.NotEmpty(t, report.ResolveFailures)
	assert.Zero(t, server.imageRequests.Load())
	assert.Equal(t, int64(len(report.ResolveFailures)), report.Stats.PointsFailed)
}
