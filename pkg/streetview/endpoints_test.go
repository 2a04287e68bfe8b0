package streetview

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataURL(t *testing.T) {
	u, err := MetadataURL("https://example.test/", "k", -33.8688, 151.2093, 25, "")
	require.NoError(t, err)

	assert.Equal(t, "example.test", u.Host)
	assert.Equal(t, MetadataEndpoint, u.Path)
	assert.Equal(t, "-33.8688000,151.2093000", u.Query().Get("location"))
	assert.Equal(t, "25", u.Query().Get("radius"))
	assert.False(t, u.Query().Has("source"))
}

func TestImageURLDefaults(t *testing.T) {
	u, err := ImageURL(BaseURL, "k", "abc", 270, ImageParams{})
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "abc", q.Get("pano"))
	assert.Equal(t, "270", q.Get("heading"))
	assert.Equal(t, DefaultImageSize, q.Get("size"))
	assert.False(t, q.Has("fov"))
	assert.Equal(t, "0", q.Get("pitch"))
}

func TestRedact(t *testing.T) {
	u, _ := url.Parse("https://maps.example/x?key=secret&pano=abc&signature=sig")
	out := Redact(u)

	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "=sig")
	assert.Contains(t, out, "pano=abc")
	assert.Equal(t, "", Redact(nil))

	plain, _ := url.Parse("https://maps.example/x?pano=abc")
	assert.Equal(t, "https://maps.example/x?pano=abc", Redact(plain))
}

func TestSignerKeepsQuery(t *testing.T) {
	signer, err := NewSigner("c2VjcmV0LWJ5dGVz")
	require.NoError(t, err)

	u, _ := url.Parse("https://maps.example/maps/api/streetview?key=k&pano=p")
	signed := signer.Sign(u)

	assert.Equal(t, "key=k&pano=p", u.RawQuery, "input is not modified")
	assert.Contains(t, signed.RawQuery, "key=k&pano=p&signature=")
	assert.Equal(t, signed.RawQuery, signer.Sign(u).RawQuery, "deterministic")

	_, err = NewSigner("  ")
	assert.Error(t, err)
}
