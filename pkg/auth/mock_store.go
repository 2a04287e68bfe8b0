package auth

import (
	"sync"
)

// MockStore is an in-memory CredentialStore with error injection for tests
type MockStore struct {
	profiles map[string]*Profile
	mu       sync.RWMutex

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{profiles: make(map[string]*Profile)}
}

// Store saves a copy of the profile
func (m *MockStore) Store(profile *Profile) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if profile == nil || profile.Name == "" {
		return ErrInvalidCredentials
	}

	cp := *profile
	m.profiles[profile.Name] = &cp
	return nil
}

// Retrieve returns a copy of the named profile
func (m *MockStore) Retrieve(name string) (*Profile, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidCredentials
	}

	profile, ok := m.profiles[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	cp := *profile
	return &cp, nil
}

// List returns copies of all profiles
func (m *MockStore) List() ([]*Profile, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var profiles []*Profile
	for _, p := range m.profiles {
		cp := *p
		profiles = append(profiles, &cp)
	}
	return profiles, nil
}

// Delete removes the named profile
func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return ErrInvalidCredentials
	}
	if _, ok := m.profiles[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.profiles, name)
	return nil
}

// Exists checks if the named profile is stored
func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.profiles[name]
	return ok
}

// Count returns the number of stored profiles
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.profiles)
}

// NewMockManager creates a Manager over a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
