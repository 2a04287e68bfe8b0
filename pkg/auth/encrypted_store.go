package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"streetviewdl/pkg/config"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
	fileFormat = 1
)

// PassphraseEnv overrides the generated passphrase of the encrypted file
const PassphraseEnv = config.EnvPrefix + "PASSPHRASE"

// EncryptedFileStore implements CredentialStore using an AES-GCM encrypted
// JSON file keyed by a PBKDF2-derived key
type EncryptedFileStore struct {
	filepath   string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the on-disk form; Profiles is encrypted into Encrypted
type envelope struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

type vault struct {
	salt     []byte
	profiles map[string]Profile
}

// NewEncryptedFileStore creates a store at filePath. The passphrase comes
// from PassphraseEnv or a generated file next to the config.
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	passphrase, err := getPassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}

	return &EncryptedFileStore{filepath: filePath, passphrase: passphrase}, nil
}

// Store saves the profile, replacing one with the same name
func (e *EncryptedFileStore) Store(profile *Profile) error {
	if profile == nil || profile.Name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(v *vault) error {
		v.profiles[profile.Name] = *profile
		return nil
	})
}

// Retrieve gets the named profile
func (e *EncryptedFileStore) Retrieve(name string) (*Profile, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	v, err := e.read()
	if err != nil {
		return nil, err
	}
	profile, ok := v.profiles[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &profile, nil
}

// List returns all stored profiles in no particular order
func (e *EncryptedFileStore) List() ([]*Profile, error) {
	v, err := e.read()
	if err != nil {
		return nil, err
	}
	profiles := make([]*Profile, 0, len(v.profiles))
	for _, p := range v.profiles {
		profiles = append(profiles, &p)
	}
	return profiles, nil
}

// Delete removes the named profile. The file goes with the last profile.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(v *vault) error {
		if _, ok := v.profiles[name]; !ok {
			return ErrCredentialsNotFound
		}
		delete(v.profiles, name)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

// read returns the stored vault, or an empty one when the file is absent
func (e *EncryptedFileStore) read() (*vault, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.load()
	if os.IsNotExist(err) {
		return &vault{profiles: map[string]Profile{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return v, nil
}

// update applies change to the stored vault under the write lock and
// persists the result
func (e *EncryptedFileStore) update(change func(*vault) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.load()
	switch {
	case os.IsNotExist(err):
		v = &vault{profiles: map[string]Profile{}}
	case err != nil:
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if err := change(v); err != nil {
		return err
	}
	if len(v.profiles) == 0 {
		if err := os.Remove(e.filepath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return e.save(v)
}

func (e *EncryptedFileStore) load() (*vault, error) {
	content, err := os.ReadFile(e.filepath)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	if env.Version > fileFormat {
		return nil, fmt.Errorf("credentials file version %d is newer than supported %d", env.Version, fileFormat)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data (wrong passphrase?): %w", err)
	}

	profiles := make(map[string]Profile)
	if err := json.Unmarshal(plain, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	return &vault{salt: salt, profiles: profiles}, nil
}

func (e *EncryptedFileStore) save(v *vault) error {
	if len(v.salt) == 0 {
		v.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, v.salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(v.profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	sealed, err := encrypt(plain, e.key(v.salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Salt:      base64.StdEncoding.EncodeToString(v.salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   fileFormat,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tempFile := e.filepath + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tempFile, e.filepath)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

// getPassphrase reads PassphraseEnv, or a passphrase file in the config
// directory that is generated on first use
func getPassphrase() (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	passphraseFile := filepath.Join(configDir, ".passphrase")

	if content, err := os.ReadFile(passphraseFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)

	if err := os.WriteFile(passphraseFile, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encrypt returns the nonce followed by the sealed plaintext
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize(), gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, sealed[:n], sealed[n:], nil)
}
