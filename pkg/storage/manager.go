package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

var imageExtensions = []string{".jpg", ".png"}

// Manager handles image files and duplicate detection
type Manager struct {
	outputDir  string
	downloaded map[string]string // image name -> file name
	mu         sync.RWMutex
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:  outputDir,
		downloaded: make(map[string]string),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// ValidPanoID reports whether id is safe to use in a file name. Panorama ids
// are URL-safe base64, so only letters, digits, '-' and '_' are accepted.
func ValidPanoID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ImageName returns the file stem of one heading of a panorama
func ImageName(panoID string, heading float64) string {
	return panoID + "_" + strconv.FormatFloat(heading, 'f', -1, 64)
}

// scanExistingFiles records images already present in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isImageExt(ext) {
			continue
		}
		m.downloaded[strings.TrimSuffix(entry.Name(), ext)] = entry.Name()
	}

	return nil
}

func isImageExt(ext string) bool {
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImagePath returns the stored file for a heading, if any
func (m *Manager) ImagePath(panoID string, heading float64) (string, bool) {
	if !ValidPanoID(panoID) {
		return "", false
	}
	name := ImageName(panoID, heading)

	m.mu.RLock()
	file, ok := m.downloaded[name]
	m.mu.RUnlock()
	if ok {
		return filepath.Join(m.outputDir, file), true
	}

	for _, ext := range imageExtensions {
		path := filepath.Join(m.outputDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			m.mu.Lock()
			m.downloaded[name] = name + ext
			m.mu.Unlock()
			return path, true
		}
	}
	return "", false
}

// HasImage checks whether a heading of a panorama is already stored
func (m *Manager) HasImage(panoID string, heading float64) bool {
	_, ok := m.ImagePath(panoID, heading)
	return ok
}

// SaveImage writes an image atomically and returns its path and size
func (m *Manager) SaveImage(r io.Reader, panoID string, heading float64, ext string) (string, int64, error) {
	if !isImageExt(ext) {
		return "", 0, fmt.Errorf("unsupported image extension %q", ext)
	}
	if !ValidPanoID(panoID) {
		return "", 0, fmt.Errorf("panorama id %q is not usable as a file name", panoID)
	}
	name := ImageName(panoID, heading)
	filename := filepath.Join(m.outputDir, name+ext)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to save image data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.downloaded[name] = name + ext
	m.mu.Unlock()

	return filename, n, nil
}

// GetDownloadedCount returns the number of stored images
func (m *Manager) GetDownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}
