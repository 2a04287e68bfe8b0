// Package streetview provides a client for the Street View Static API.
//
// The client issues two kinds of requests: metadata lookups, which map a
// location to the nearest panorama, and image requests, which render one
// heading of a known panorama. Service failures come back as *errors.Error
// values typed for the retry policy. ZERO_RESULTS and NOT_FOUND match
// errors.ErrNotFound.
//
// Example usage:
//
//	client, err := streetview.NewClient(cfg.Imagery, log)
//	if err != nil {
//	    return err
//	}
//
//	meta, err := client.Metadata(ctx, 48.8584, 2.2945, 50)
//	if errors.Is(err, errs.ErrNotFound) {
//	    // no coverage here
//	}
//
//	img, err := client.Image(ctx, meta.PanoID, 90)
//
// API keys and signatures are never written to logs.
package streetview
