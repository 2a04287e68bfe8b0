package auth

import (
	"os"
	"time"

	"streetviewdl/pkg/config"
)

// EnvironmentStore is a read-only store over STREETVIEWDL_API_KEY and
// STREETVIEWDL_SIGNING_SECRET. It answers for any profile name.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-backed store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve builds a profile from the environment
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	key := os.Getenv(config.EnvPrefix + "API_KEY")
	if key == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultProfile
	}

	return &Profile{
		Name:          name,
		APIKey:        key,
		SigningSecret: os.Getenv(config.EnvPrefix + "SIGNING_SECRET"),
		LastModified:  time.Now(),
	}, nil
}

// List returns the environment profile when the key is set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists reports whether the API key variable is set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(config.EnvPrefix+"API_KEY") != ""
}
