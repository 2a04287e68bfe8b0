// Package storage provides file management for downloaded panorama images.
//
// The storage package handles:
//   - Creating and managing the output directory
//   - Saving images with atomic write operations
//   - Detecting images stored by earlier runs
//
// Images are named <pano_id>_<heading>.jpg (or .png when the service returns
// PNG). The Manager keeps an in-memory index of stored images, seeded by a
// scan of the output directory, so re-runs skip headings already on disk.
//
// Artifacts combines the Manager with the metadata database and is what the
// download orchestrator writes through.
//
// Usage:
//
//	manager, err := storage.NewManager("streetview")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !manager.HasImage("CAoSLEFGMVFpcE", 90) {
//	    path, size, err := manager.SaveImage(r, "CAoSLEFGMVFpcE", 90, ".jpg")
//	    ...
//	}
package storage
