package streetview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"streetviewdl/pkg/config"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
)

// Client talks to the Street View Static API. Safe for concurrent use once
// configured.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	apiKey     string
	signer     *Signer
	source     string
	image      ImageParams
	logger     logger.Logger
}

// NewClient creates a client from the imagery configuration
func NewClient(cfg config.ImageryConfig, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	base := cfg.BaseURL
	if base == "" {
		base = BaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid imagery base url: %w", err)
	}
	if cfg.ImageSize != "" {
		if _, _, err := config.ParseImageSize(cfg.ImageSize); err != nil {
			return nil, err
		}
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		headers: map[string]string{
			"User-Agent": "streetviewdl/1.0",
			"Accept":     "application/json, image/jpeg, image/png",
		},
		baseURL: base,
		apiKey:  cfg.APIKey,
		source:  cfg.Source,
		image: ImageParams{
			Size:  cfg.ImageSize,
			FOV:   cfg.FOV,
			Pitch: cfg.Pitch,
		},
		logger: log,
	}

	if cfg.SigningSecret != "" {
		signer, err := NewSigner(cfg.SigningSecret)
		if err != nil {
			return nil, err
		}
		c.signer = signer
	}

	return c, nil
}

func (c *Client) sign(u *url.URL) *url.URL {
	if c.signer == nil {
		return u
	}
	return c.signer.Sign(u)
}

// doRequest performs a GET with the configured headers. Transport failures
// come back as network errors, or wrap errs.ErrCancelled when ctx ended.
func (c *Client) doRequest(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	safeURL := Redact(u)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrCancelled, ctx.Err())
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      safeURL,
			"error":    scrub(err, u),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %s", scrub(err, u)),
		}
	}

	logger.LogRequest(c.logger, req.Method, safeURL, resp.StatusCode, duration)
	return resp, nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, safeURL string) error {
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    safeURL,
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return &errs.Error{Type: errs.ErrorTypeInvalidRequest, Message: "request rejected", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "API key rejected", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "no imagery", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfter(resp)
		logger.LogRateLimit(c.logger, safeURL, wait)
		return &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: resp.StatusCode, RetryAfter: wait}
	case resp.StatusCode == http.StatusRequestTimeout:
		return &errs.Error{Type: errs.ErrorTypeNetwork, Message: "request timeout", Code: resp.StatusCode}
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", fields)
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Code: resp.StatusCode}
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

// getJSON performs a GET request and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, u *url.URL, target interface{}) error {
	safeURL := Redact(u)
	resp, err := c.doRequest(ctx, c.sign(u))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, safeURL); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          safeURL,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return nil
}

// Metadata looks up the panorama nearest to lat/lon within radius metres.
// A location without coverage returns an error matching errs.ErrNotFound.
func (c *Client) Metadata(ctx context.Context, lat, lon, radius float64) (*Metadata, error) {
	u, err := MetadataURL(c.baseURL, c.apiKey, lat, lon, radius, c.source)
	if err != nil {
		return nil, err
	}

	var response MetadataResponse
	if err := c.getJSON(ctx, u, &response); err != nil {
		return nil, err
	}

	if err := statusError(response); err != nil {
		if errs.TypeOf(err) == errs.ErrorTypeRateLimit {
			logger.LogRateLimit(c.logger, MetadataEndpoint, 0)
		}
		return nil, err
	}
	if response.PanoID == "" {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: "OK response without pano_id",
			Status:  response.Status,
		}
	}

	return &Metadata{
		PanoID:    response.PanoID,
		Location:  orb.Point{response.Location.Lng, response.Location.Lat},
		Date:      response.Date,
		Copyright: response.Copyright,
	}, nil
}

// Image fetches one heading of a panorama
func (c *Client) Image(ctx context.Context, panoID string, heading float64) (*Image, error) {
	u, err := ImageURL(c.baseURL, c.apiKey, panoID, heading, c.image)
	if err != nil {
		return nil, err
	}
	safeURL := Redact(u)

	resp, err := c.doRequest(ctx, c.sign(u))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, safeURL); err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("unexpected content type %q: %s", contentType, preview),
			Code:    resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read image: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return &Image{
		PanoID:      panoID,
		Heading:     heading,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func statusError(r MetadataResponse) error {
	e := &errs.Error{Status: r.Status, Message: r.ErrorMessage, Code: http.StatusOK}
	switch r.Status {
	case StatusOK:
		return nil
	case StatusZeroResults, StatusNotFound:
		e.Type = errs.ErrorTypeNotFound
		if e.Message == "" {
			e.Message = "no panorama near location"
		}
	case StatusOverQueryLimit:
		e.Type = errs.ErrorTypeRateLimit
	case StatusRequestDenied:
		e.Type = errs.ErrorTypeAuth
	case StatusInvalidRequest:
		e.Type = errs.ErrorTypeInvalidRequest
	case StatusUnknownError:
		e.Type = errs.ErrorTypeServerError
	default:
		e.Type = errs.ErrorTypeParsing
		e.Message = fmt.Sprintf("unknown status %q", r.Status)
	}
	return e
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// scrub removes the request URL from transport errors so the key is not logged
func scrub(err error, u *url.URL) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Sprintf("%s %s: %v", uerr.Op, Redact(u), uerr.Err)
	}
	return err.Error()
}
