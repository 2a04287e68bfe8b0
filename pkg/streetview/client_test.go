package streetview

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetviewdl/pkg/config"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
)

const testKey = "AIza-test-key"

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*config.ImageryConfig)) (*Client, *logger.TestLogger) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig().Imagery
	cfg.BaseURL = server.URL
	cfg.APIKey = testKey
	cfg.Timeout = 5 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	log := logger.NewTestLogger()
	client, err := NewClient(cfg, log)
	require.NoError(t, err)
	return client, log
}

func metadataJSON(status string) string {
	return fmt.Sprintf(`{"status":%q,"pano_id":"pano-1","date":"2019-07","copyright":"© Google","location":{"lat":48.8584,"lng":2.2945}}`, status)
}

func TestMetadataOK(t *testing.T) {
	var query string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MetadataEndpoint, r.URL.Path)
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, metadataJSON(StatusOK))
	})

	meta, err := client.Metadata(context.Background(), 48.8584, 2.2945, 50)
	require.NoError(t, err)

	assert.Equal(t, "pano-1", meta.PanoID)
	assert.Equal(t, 2.2945, meta.Location[0])
	assert.Equal(t, 48.8584, meta.Location[1])
	assert.Equal(t, "2019-07", meta.Date)
	assert.Equal(t, "© Google", meta.Copyright)

	assert.Contains(t, query, "location=48.8584000%2C2.2945000")
	assert.Contains(t, query, "radius=50")
	assert.Contains(t, query, "source=outdoor")
	assert.Contains(t, query, "key="+testKey)
	assert.NotContains(t, query, "signature=")
}

func TestMetadataStatusMapping(t *testing.T) {
	tests := []struct {
		status   string
		expected errs.ErrorType
	}{
		{StatusZeroResults, errs.ErrorTypeNotFound},
		{StatusNotFound, errs.ErrorTypeNotFound},
		{StatusOverQueryLimit, errs.ErrorTypeRateLimit},
		{StatusRequestDenied, errs.ErrorTypeAuth},
		{StatusInvalidRequest, errs.ErrorTypeInvalidRequest},
		{StatusUnknownError, errs.ErrorTypeServerError},
		{"SOMETHING_NEW", errs.ErrorTypeParsing},
	}

	for _, test := range tests {
		t.Run(test.status, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, metadataJSON(test.status))
			})

			meta, err := client.Metadata(context.Background(), 1, 2, 50)
			require.Error(t, err)
			assert.Nil(t, meta)
			assert.Equal(t, test.expected, errs.TypeOf(err))
			assert.Equal(t, test.expected == errs.ErrorTypeNotFound, stderrors.Is(err, errs.ErrNotFound))
		})
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code      int
		expected  errs.ErrorType
		retryable bool
	}{
		{http.StatusBadRequest, errs.ErrorTypeInvalidRequest, false},
		{http.StatusForbidden, errs.ErrorTypeAuth, false},
		{http.StatusNotFound, errs.ErrorTypeNotFound, false},
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit, true},
		{http.StatusInternalServerError, errs.ErrorTypeServerError, true},
		{http.StatusServiceUnavailable, errs.ErrorTypeServerError, true},
		{http.StatusTeapot, errs.ErrorTypeUnknown, false},
	}

	for _, test := range tests {
		t.Run(http.StatusText(test.code), func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.code)
			})

			_, err := client.Metadata(context.Background(), 1, 2, 50)
			require.Error(t, err)

			var apiErr *errs.Error
			require.True(t, stderrors.As(err, &apiErr))
			assert.Equal(t, test.expected, apiErr.Type)
			assert.Equal(t, test.code, apiErr.Code)
			assert.Equal(t, test.retryable, apiErr.IsTransient())
		})
	}
}

func TestThrottledResponseCarriesRetryAfter(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Metadata(context.Background(), 1, 2, 50)

	var apiErr *errs.Error
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
}

func TestMetadataMalformedJSON(t *testing.T) {
	client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})

	_, err := client.Metadata(context.Background(), 1, 2, 50)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
	assert.True(t, log.HasMessage("failed to parse JSON response"))
}

func TestMetadataOKWithoutPano(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK"}`)
	})

	_, err := client.Metadata(context.Background(), 1, 2, 50)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestImage(t *testing.T) {
	var query string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ImageEndpoint, r.URL.Path)
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	})

	img, err := client.Image(context.Background(), "pano-1", 87.5)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, img.Data)
	assert.Equal(t, "pano-1", img.PanoID)
	assert.Equal(t, 87.5, img.Heading)
	assert.Equal(t, ".jpg", img.Extension())

	assert.Contains(t, query, "pano=pano-1")
	assert.Contains(t, query, "heading=87.5")
	assert.Contains(t, query, "size=640x640")
	assert.Contains(t, query, "fov=90")
	assert.Contains(t, query, "pitch=0")
}

func TestImageRejectsNonImageBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprint(w, "Sorry, we have no imagery here.")
	})

	img, err := client.Image(context.Background(), "pano-1", 0)
	assert.Nil(t, img)

	var apiErr *errs.Error
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, errs.ErrorTypeParsing, apiErr.Type)
	assert.Contains(t, apiErr.Message, "no imagery")
}

func TestSignedRequests(t *testing.T) {
	secret := []byte("not-a-real-secret")
	encoded := base64.URLEncoding.EncodeToString(secret)

	var valid atomic.Bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		unsigned, sig, found := strings.Cut(r.URL.RawQuery, "&signature=")
		if !found {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		mac := hmac.New(sha1.New, secret)
		mac.Write([]byte(r.URL.EscapedPath() + "?" + unsigned))
		valid.Store(sig == base64.URLEncoding.EncodeToString(mac.Sum(nil)))
		fmt.Fprint(w, metadataJSON(StatusOK))
	}, func(cfg *config.ImageryConfig) {
		cfg.SigningSecret = encoded
	})

	_, err := client.Metadata(context.Background(), 10, 20, 30)
	require.NoError(t, err)
	assert.True(t, valid.Load())
}

func TestInvalidSigningSecret(t *testing.T) {
	cfg := config.DefaultConfig().Imagery
	cfg.SigningSecret = "!!!not base64!!!"

	_, err := NewClient(cfg, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestInvalidImageSize(t *testing.T) {
	cfg := config.DefaultConfig().Imagery
	cfg.ImageSize = "1000x1000"

	_, err := NewClient(cfg, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestCredentialsNeverLogged(t *testing.T) {
	client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *config.ImageryConfig) {
		cfg.SigningSecret = base64.URLEncoding.EncodeToString([]byte("s3cret"))
	})

	_, err := client.Metadata(context.Background(), 1, 2, 50)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testKey)

	out := log.String()
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, testKey)
	assert.Contains(t, out, "key="+redacted)
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	cfg := config.DefaultConfig().Imagery
	cfg.BaseURL = base
	cfg.APIKey = testKey
	client, err := NewClient(cfg, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = client.Metadata(context.Background(), 1, 2, 50)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.NotContains(t, err.Error(), testKey)
}

func TestCancelledContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, metadataJSON(StatusOK))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Metadata(ctx, 1, 2, 50)
	assert.True(t, stderrors.Is(err, errs.ErrCancelled))
}
