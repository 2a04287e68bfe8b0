// Package checkpoint remembers metadata lookups between runs.
//
// Re-running over the same area repeats the same location queries. The
// lookup cache stores each outcome, found or not found, keyed by the rounded
// location and search radius, so a second run can skip the network for every
// point it has already seen. Entries older than the configured expiry are
// ignored and dropped on load.
//
// Cache files are stored in platform-specific data directories:
//   - Linux: ~/.local/share/streetviewdl/cache/
//   - macOS: ~/Library/Application Support/streetviewdl/cache/
//   - Windows: %APPDATA%/streetviewdl/cache/
//
// The file is written atomically through a temporary file and rename.
package checkpoint
