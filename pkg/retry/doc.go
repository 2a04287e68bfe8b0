// Package retry provides exponential backoff and retry logic for transient
// failures of imagery service requests.
//
// Every attempt receives the caller's context. Do checks the context before
// each attempt and while waiting between attempts, and always reports how
// many attempts were made:
//
//	policy := retry.FromConfig(cfg.Retry, log)
//	attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
//		_, err := client.Metadata(ctx, lat, lon, radius)
//		return err
//	})
//
// Only errors classified as transient by pkg/errors are retried. When every
// attempt fails the returned *ExhaustedError wraps the last error.
// Rate limited responses use a longer backoff than network or server errors
// and respect the service's Retry-After header up to Policy.MaxHint.
package retry
