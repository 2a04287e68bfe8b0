package streetview

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the default Street View Static API host
	BaseURL = "https://maps.googleapis.com"

	// MetadataEndpoint returns panorama metadata for a location
	MetadataEndpoint = "/maps/api/streetview/metadata"

	// ImageEndpoint returns a rendered view of a panorama
	ImageEndpoint = "/maps/api/streetview"

	// DefaultImageSize is the largest size the standard plan serves
	DefaultImageSize = "640x640"

	redacted = "REDACTED"
)

// Signer adds URL signatures for keys that require them
type Signer struct {
	secret []byte
}

// NewSigner decodes a URL-safe base64 signing secret
func NewSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("empty signing secret")
	}
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(secret, "="))
		if err != nil {
			return nil, fmt.Errorf("signing secret is not URL-safe base64: %w", err)
		}
	}
	return &Signer{secret: key}, nil
}

// Sign returns u with a signature parameter over its path and query
func (s *Signer) Sign(u *url.URL) *url.URL {
	mac := hmac.New(sha1.New, s.secret)
	mac.Write([]byte(u.EscapedPath() + "?" + u.RawQuery))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	signed := *u
	signed.RawQuery = u.RawQuery + "&signature=" + sig
	return &signed
}

// MetadataURL builds an unsigned metadata query
func MetadataURL(base, key string, lat, lon, radius float64, source string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + MetadataEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}

	params := url.Values{}
	params.Set("location", formatCoord(lat)+","+formatCoord(lon))
	if radius > 0 {
		params.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	if source != "" {
		params.Set("source", source)
	}
	params.Set("key", key)
	u.RawQuery = params.Encode()
	return u, nil
}

// ImageParams controls the rendered view
type ImageParams struct {
	Size  string
	FOV   int
	Pitch int
}

// ImageURL builds an unsigned image request for one heading of a panorama
func ImageURL(base, key, panoID string, heading float64, p ImageParams) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + ImageEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if p.Size == "" {
		p.Size = DefaultImageSize
	}

	params := url.Values{}
	params.Set("pano", panoID)
	params.Set("heading", strconv.FormatFloat(heading, 'f', -1, 64))
	params.Set("size", p.Size)
	if p.FOV > 0 {
		params.Set("fov", strconv.Itoa(p.FOV))
	}
	params.Set("pitch", strconv.Itoa(p.Pitch))
	params.Set("key", key)
	u.RawQuery = params.Encode()
	return u, nil
}

// Redact returns u as a string with credentials replaced
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	for _, name := range []string{"key", "signature"} {
		if q.Has(name) {
			q.Set(name, redacted)
		}
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}
