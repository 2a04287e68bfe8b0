// Package auth stores imagery API keys and URL signing secrets per named
// profile, preferring the system keychain and falling back to an encrypted
// file and then the environment.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"streetviewdl/pkg/config"
)

// DefaultProfile is used when no profile name is given
const DefaultProfile = "default"

// Profile is one set of imagery credentials
type Profile struct {
	Name          string    `json:"name"`
	APIKey        string    `json:"api_key"`
	SigningSecret string    `json:"signing_secret,omitempty"`
	LastModified  time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving profiles
type CredentialStore interface {
	// Store saves a profile, replacing one with the same name
	Store(profile *Profile) error

	// Retrieve gets the profile with the given name
	Retrieve(name string) (*Profile, error)

	// List returns all profiles the store can enumerate
	List() ([]*Profile, error)

	// Delete removes the named profile
	Delete(name string) error

	// Exists checks if the named profile exists
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with the keychain, the encrypted
// file and the environment as backends, in that order
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit backends
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the profile in the first store that accepts it
func (m *Manager) Store(profile *Profile) error {
	if profile.Name == "" {
		profile.Name = DefaultProfile
	}
	if profile.APIKey == "" {
		return errors.New("API key is required")
	}

	profile.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(profile)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the profile from the first store that has it
func (m *Manager) Retrieve(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	for _, store := range m.stores {
		if profile, err := store.Retrieve(name); err == nil && profile != nil {
			return profile, nil
		}
	}
	return nil, fmt.Errorf("%w: profile %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault gets the default profile, or the first listed one
func (m *Manager) RetrieveDefault() (*Profile, error) {
	if profile, err := m.Retrieve(DefaultProfile); err == nil {
		return profile, nil
	}

	profiles, err := m.List()
	if err == nil && len(profiles) > 0 {
		return profiles[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns the profiles of all stores sorted by name. When several
// stores hold the same name the most recently modified copy wins.
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)

	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}

	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes the profile from every store holding it
func (m *Manager) Delete(name string) error {
	if name == "" {
		name = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: profile %s", ErrCredentialsNotFound, name)
	}

	return nil
}

// Apply fills the API key and signing secret of cfg from the configured
// profile. Credentials already present in cfg are kept.
func (m *Manager) Apply(cfg *config.ImageryConfig) error {
	if cfg.APIKey != "" {
		return nil
	}

	var profile *Profile
	var err error
	if cfg.Profile != "" {
		profile, err = m.Retrieve(cfg.Profile)
	} else {
		profile, err = m.RetrieveDefault()
	}
	if err != nil {
		return err
	}

	cfg.APIKey = profile.APIKey
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = profile.SigningSecret
	}
	return nil
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "streetviewdl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "streetviewdl")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "streetviewdl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "streetviewdl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeProfile returns a copy with the key and secret masked
func SanitizeProfile(profile *Profile) *Profile {
	if profile == nil {
		return nil
	}

	out := *profile
	out.APIKey = maskString(profile.APIKey)
	if profile.SigningSecret != "" {
		out.SigningSecret = maskString(profile.SigningSecret)
	}
	return &out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
