// Package ratelimit paces requests to the imagery service.
//
// TokenBucket wraps golang.org/x/time/rate behind the small Limiter interface.
// One instance is built from the rate_limit configuration section and shared
// by the metadata lookups and the image downloads, so the combined request
// rate never exceeds the configured quota:
//
//	limiter := ratelimit.FromConfig(cfg.RateLimit)
//	if err := limiter.Wait(ctx); err != nil {
//		return err // cancelled
//	}
package ratelimit
