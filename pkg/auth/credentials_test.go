package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"streetviewdl/pkg/config"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	profile := &Profile{
		Name:          "work",
		APIKey:        "AIzaSyTestKey1234567890",
		SigningSecret: "c2lnbmluZy1zZWNyZXQ=",
	}

	if err := manager.Store(profile); err != nil {
		t.Fatalf("Failed to store profile: %v", err)
	}
	if profile.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("work")
	if err != nil {
		t.Fatalf("Failed to retrieve profile: %v", err)
	}
	if retrieved.APIKey != profile.APIKey {
		t.Errorf("APIKey mismatch: got %s, want %s", retrieved.APIKey, profile.APIKey)
	}
	if retrieved.SigningSecret != profile.SigningSecret {
		t.Errorf("SigningSecret mismatch: got %s, want %s", retrieved.SigningSecret, profile.SigningSecret)
	}

	profiles, err := manager.List()
	if err != nil {
		t.Fatalf("Failed to list profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile, got %d", len(profiles))
	}

	sanitized := SanitizeProfile(profile)
	if sanitized.APIKey == profile.APIKey || sanitized.SigningSecret == profile.SigningSecret {
		t.Error("Key and secret should be masked")
	}
	if sanitized.Name != profile.Name {
		t.Error("Name should not be masked")
	}

	if err := manager.Delete("work"); err != nil {
		t.Errorf("Failed to delete profile: %v", err)
	}
	if _, err := manager.Retrieve("work"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound after delete, got %v", err)
	}
	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 profiles after deletion, got %d", mockStore.Count())
	}
}

func TestStoreRequiresKey(t *testing.T) {
	manager, _ := NewMockManager()

	if err := manager.Store(&Profile{Name: "empty"}); err == nil {
		t.Error("Expected an error for a profile without an API key")
	}

	p := &Profile{APIKey: "key"}
	if err := manager.Store(p); err != nil {
		t.Fatalf("Failed to store profile: %v", err)
	}
	if p.Name != DefaultProfile {
		t.Errorf("Expected unnamed profile to become %q, got %q", DefaultProfile, p.Name)
	}
}

func TestStoreFallsBack(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)
	if err := manager.Store(&Profile{Name: "p", APIKey: "key"}); err != nil {
		t.Fatalf("Expected fallback store to accept the profile: %v", err)
	}
	if !working.Exists("p") {
		t.Error("Profile should be in the fallback store")
	}

	working.StoreError = errors.New("disk full")
	if err := manager.Store(&Profile{Name: "q", APIKey: "key"}); err == nil {
		t.Error("Expected an error when every store fails")
	}
}

func TestListPrefersNewest(t *testing.T) {
	older, newer := NewMockStore(), NewMockStore()
	now := time.Now()
	older.Store(&Profile{Name: "default", APIKey: "old", LastModified: now.Add(-time.Hour)})
	newer.Store(&Profile{Name: "default", APIKey: "new", LastModified: now})
	newer.Store(&Profile{Name: "alpha", APIKey: "a", LastModified: now})

	profiles, err := NewManagerWithStores(older, newer).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("Expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Name != "alpha" || profiles[1].APIKey != "new" {
		t.Errorf("Unexpected profiles: %+v %+v", profiles[0], profiles[1])
	}
}

func TestApply(t *testing.T) {
	manager, store := NewMockManager()
	store.Store(&Profile{Name: "default", APIKey: "default-key", SigningSecret: "default-secret"})
	store.Store(&Profile{Name: "work", APIKey: "work-key"})

	cfg := config.ImageryConfig{}
	if err := manager.Apply(&cfg); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if cfg.APIKey != "default-key" || cfg.SigningSecret != "default-secret" {
		t.Errorf("Expected default profile, got %+v", cfg)
	}

	cfg = config.ImageryConfig{Profile: "work", SigningSecret: "flag-secret"}
	if err := manager.Apply(&cfg); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if cfg.APIKey != "work-key" || cfg.SigningSecret != "flag-secret" {
		t.Errorf("Expected work key with explicit secret kept, got %+v", cfg)
	}

	cfg = config.ImageryConfig{APIKey: "explicit"}
	if err := manager.Apply(&cfg); err != nil || cfg.APIKey != "explicit" {
		t.Errorf("Explicit key should win, got %+v (%v)", cfg, err)
	}

	cfg = config.ImageryConfig{Profile: "missing"}
	if err := manager.Apply(&cfg); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	profile := &Profile{Name: "encrypted", APIKey: "plaintext-api-key", SigningSecret: "plaintext-secret"}
	if err := store.Store(profile); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("encrypted")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.APIKey != profile.APIKey {
		t.Errorf("APIKey mismatch after encryption/decryption")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("plaintext-api-key")) || bytes.Contains(content, []byte("plaintext-secret")) {
		t.Error("File contains plaintext credentials")
	}

	// a different passphrase cannot read the file
	t.Setenv(PassphraseEnv, "another_passphrase")
	other, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Retrieve("encrypted"); err == nil {
		t.Error("Expected decryption to fail with the wrong passphrase")
	}

	t.Setenv(PassphraseEnv, "test_passphrase_123")
	if err := store.Delete("encrypted"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("File should be removed with the last profile")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(config.EnvPrefix+"API_KEY", "env-key")
	t.Setenv(config.EnvPrefix+"SIGNING_SECRET", "env-secret")

	store := NewEnvironmentStore()

	profile, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if profile.Name != DefaultProfile || profile.APIKey != "env-key" || profile.SigningSecret != "env-secret" {
		t.Errorf("Unexpected profile %+v", profile)
	}

	if err := store.Store(&Profile{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}

	t.Setenv(config.EnvPrefix+"API_KEY", "")
	if store.Exists("") {
		t.Error("Store should be empty without the key variable")
	}
	profiles, _ := store.List()
	if len(profiles) != 0 {
		t.Errorf("Expected no profiles, got %d", len(profiles))
	}
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()

	profiles, err := store.List()
	if err != nil {
		t.Errorf("Failed to list empty store: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("Expected 0 profiles, got %d", len(profiles))
	}

	if err := store.Store(&Profile{Name: "mock", APIKey: "k"}); err != nil {
		t.Errorf("Failed to store profile: %v", err)
	}
	if !store.Exists("mock") || store.Count() != 1 {
		t.Error("Profile should exist")
	}

	store.ListError = fmt.Errorf("injected error")
	if _, err := store.List(); err == nil || err.Error() != "injected error" {
		t.Error("Expected injected error")
	}
}
