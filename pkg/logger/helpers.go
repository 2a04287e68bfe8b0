package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs an imagery service request. The url must already be
// stripped of credentials.
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	default:
		l.WarnWithFields("HTTP request failed", fields)
	}
}

// LogStage logs the start or end of a pipeline stage
func LogStage(l Logger, stage, event string, fields map[string]interface{}) {
	merged := map[string]interface{}{
		"stage": stage,
		"event": event,
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.InfoWithFields("Pipeline stage "+event, merged)
}

// LogResolution logs the outcome of a single location lookup
func LogResolution(l Logger, key, status, panoID string, attempts int, err error) {
	entry := l.WithFields(map[string]interface{}{
		"sample":   key,
		"status":   status,
		"pano_id":  panoID,
		"attempts": attempts,
	})

	if err != nil {
		entry.WithError(err).Warn("Lookup failed")
		return
	}
	entry.Debug("Lookup finished")
}

// LogDownload logs a single image job outcome
func LogDownload(l Logger, panoID string, heading float64, status string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"pano_id": panoID,
		"heading": heading,
		"status":  status,
	})

	switch {
	case err != nil:
		entry.WithError(err).Error("Download failed")
	case status == "skipped":
		entry.Debug("Download skipped")
	default:
		entry.Debug("Download completed")
	}
}

// LogRateLimit logs a throttling response from the imagery service
func LogRateLimit(l Logger, endpoint string, retryAfter time.Duration) {
	l.WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
