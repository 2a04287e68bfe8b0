package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"streetviewdl/pkg/config"
	"streetviewdl/pkg/logger"
)

const (
	cacheVersion = 1

	// StatusFound marks a lookup that returned a panorama
	StatusFound = "found"
	// StatusNotFound marks a lookup with no coverage
	StatusNotFound = "not_found"
)

// Entry is one remembered metadata lookup
type Entry struct {
	Status    string    `json:"status"`
	PanoID    string    `json:"pano_id,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	Date      string    `json:"date,omitempty"`
	Copyright string    `json:"copyright,omitempty"`
	StoredAt  time.Time `json:"stored_at"`
}

// Cache is the on-disk lookup table
type Cache struct {
	Version   int              `json:"version"`
	Entries   map[string]Entry `json:"entries"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Manager owns the lookup cache file. Lookup and Store are safe for
// concurrent use.
type Manager struct {
	path        string
	expireAfter time.Duration
	logger      logger.Logger
	now         func() time.Time

	mu    sync.RWMutex
	cache *Cache
	dirty bool
}

// NewManager creates a cache manager. An empty path selects the platform
// data directory.
func NewManager(path string, expireAfter time.Duration, log logger.Logger) (*Manager, error) {
	if path == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		path = filepath.Join(dataDir, "cache", "lookups.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Manager{
		path:        path,
		expireAfter: expireAfter,
		logger:      logger.OrNop(log),
		now:         time.Now,
		cache:       newCache(time.Now()),
	}, nil
}

// FromConfig opens the cache described by the cache section, or returns nil
// when caching is disabled.
func FromConfig(cfg config.CacheConfig, log logger.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	m, err := NewManager(cfg.Path, cfg.ExpireAfter, log)
	if err != nil {
		return nil, err
	}
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

func newCache(now time.Time) *Cache {
	return &Cache{
		Version:   cacheVersion,
		Entries:   make(map[string]Entry),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key identifies a lookup by location rounded to about 10 cm and radius
func Key(lat, lon, radius float64) string {
	return fmt.Sprintf("%.6f,%.6f,%g", lat, lon, radius)
}

// Path returns the cache file location
func (m *Manager) Path() string {
	return m.path
}

// Load reads the cache file, dropping expired entries. A missing file
// leaves the cache empty.
func (m *Manager) Load() error {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	var cache Cache
	if err := json.NewDecoder(file).Decode(&cache); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if cache.Entries == nil {
		cache.Entries = make(map[string]Entry)
	}

	purged := 0
	now := m.now()
	for key, entry := range cache.Entries {
		if m.expired(entry, now) {
			delete(cache.Entries, key)
			purged++
		}
	}

	m.mu.Lock()
	m.cache = &cache
	m.dirty = purged > 0
	m.mu.Unlock()

	m.logger.InfoWithFields("Lookup cache loaded", map[string]interface{}{
		"path":    m.path,
		"entries": len(cache.Entries),
		"purged":  purged,
	})

	return nil
}

func (m *Manager) expired(e Entry, now time.Time) bool {
	return m.expireAfter > 0 && now.Sub(e.StoredAt) > m.expireAfter
}

// Lookup returns a fresh entry for key
func (m *Manager) Lookup(key string) (Entry, bool) {
	m.mu.RLock()
	entry, ok := m.cache.Entries[key]
	m.mu.RUnlock()

	if !ok || m.expired(entry, m.now()) {
		return Entry{}, false
	}
	return entry, true
}

// Store records a lookup outcome
func (m *Manager) Store(key string, entry Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.now()
	}

	m.mu.Lock()
	m.cache.Entries[key] = entry
	m.dirty = true
	m.mu.Unlock()
}

// Len returns the number of entries held
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache.Entries)
}

// Save writes the cache to disk atomically if it changed
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}
	m.cache.UpdatedAt = m.now()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.cache); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync cache file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	m.dirty = false

	m.logger.DebugWithFields("Lookup cache saved", map[string]interface{}{
		"path":    m.path,
		"entries": len(m.cache.Entries),
	})

	return nil
}

// Delete removes the cache file and clears memory
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache: %w", err)
	}

	m.mu.Lock()
	m.cache = newCache(m.now())
	m.dirty = false
	m.mu.Unlock()

	m.logger.Info("Lookup cache deleted")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "streetviewdl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "streetviewdl")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "streetviewdl")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "streetviewdl")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
