// Package credentials resolves the secrets the toolchain needs at runtime:
// the ingest API key and the SCM tokens used to fetch model definitions.
// Stores can be chained so environment variables override a local file.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Common errors for credential operations.
var (
	// ErrNotFound is returned when a credential does not exist.
	ErrNotFound = errors.New("credential not found")

	// ErrReadOnly is returned when writing to a read-only store.
	ErrReadOnly = errors.New("credential store is read-only")

	// ErrInvalidKey is returned for malformed credential keys.
	ErrInvalidKey = errors.New("invalid credential key")

	// ErrExpired is returned when a credential has passed its expiry.
	ErrExpired = errors.New("credential has expired")
)

// Type categorizes a credential.
type Type string

const (
	TypeAPIKey Type = "api_key"
	TypeToken  Type = "token"
	TypeSecret Type = "secret"
)

// Credential is a stored secret with bookkeeping metadata.
type Credential struct {
	Key       string            `json:"key"`
	Type      Type              `json:"type"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsExpired checks if the credential has expired.
func (c *Credential) IsExpired() bool {
	return c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt)
}

// Store is the interface for credential backends.
type Store interface {
	// Get retrieves a credential by key.
	Get(ctx context.Context, key string) (*Credential, error)

	// Set stores a credential. Read-only stores return ErrReadOnly.
	Set(ctx context.Context, key string, cred *Credential) error

	// Delete removes a credential.
	Delete(ctx context.Context, key string) error

	// Exists checks if a credential exists.
	Exists(ctx context.Context, key string) (bool, error)
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateKey checks that a credential key is well formed: lowercase
// alphanumerics plus dots, dashes and underscores.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// GetValue retrieves just the secret value, rejecting expired credentials.
func GetValue(ctx context.Context, store Store, key string) (string, error) {
	cred, err := store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if cred.IsExpired() {
		return "", fmt.Errorf("%w: %s", ErrExpired, key)
	}
	return cred.Value, nil
}

// =============================================================================
// Environment Store
// =============================================================================

// EnvStore reads credentials from environment variables. It is read-only
// and is the store of choice in CI.
type EnvStore struct {
	// Prefix is prepended to every variable lookup, e.g. "THREATCANVAS_".
	Prefix string
}

// NewEnvStore creates an environment variable credential store.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix}
}

// envKey maps "github.token" to PREFIX + "GITHUB_TOKEN".
func (s *EnvStore) envKey(key string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	return s.Prefix + name
}

func (s *EnvStore) Get(ctx context.Context, key string) (*Credential, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	value := os.Getenv(s.envKey(key))
	if value == "" {
		return nil, ErrNotFound
	}
	now := time.Now()
	return &Credential{
		Key:       key,
		Type:      TypeSecret,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *EnvStore) Set(ctx context.Context, key string, cred *Credential) error {
	return ErrReadOnly
}

func (s *EnvStore) Delete(ctx context.Context, key string) error {
	return ErrReadOnly
}

func (s *EnvStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, exists := os.LookupEnv(s.envKey(key))
	return exists, nil
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStore keeps credentials in memory. Useful for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryStore creates an in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]*Credential)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Credential, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, cred *Credential) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cred.Key = key
	cred.UpdatedAt = now
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cp := *cred
	s.creds[key] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[key]; !ok {
		return ErrNotFound
	}
	delete(s.creds, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[key]
	return ok, nil
}

// =============================================================================
// File Store
// =============================================================================

// FileStore persists credentials to a JSON file with 0600 permissions.
// Suitable for a developer workstation, not for shared hosts.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data map[string]*Credential
}

// NewFileStore opens (or creates on first write) a file-based store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: make(map[string]*Credential),
	}
	if _, err := os.Stat(path); err == nil {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parse credentials file: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *FileStore) Get(ctx context.Context, key string) (*Credential, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (s *FileStore) Set(ctx context.Context, key string, cred *Credential) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cred.Key = key
	cred.UpdatedAt = now
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cp := *cred
	s.data[key] = &cp
	return s.save()
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return s.save()
}

func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// =============================================================================
// Chain
// =============================================================================

// Chain checks multiple stores in order; the first match wins. Writes go to
// the first store that accepts them.
type Chain struct {
	stores []Store
}

// NewChain creates a chained credential store.
func NewChain(stores ...Store) *Chain {
	return &Chain{stores: stores}
}

func (c *Chain) Get(ctx context.Context, key string) (*Credential, error) {
	for _, store := range c.stores {
		cred, err := store.Get(ctx, key)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (c *Chain) Set(ctx context.Context, key string, cred *Credential) error {
	for _, store := range c.stores {
		err := store.Set(ctx, key, cred)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrReadOnly) {
			return err
		}
	}
	return ErrReadOnly
}

func (c *Chain) Delete(ctx context.Context, key string) error {
	for _, store := range c.stores {
		exists, err := store.Exists(ctx, key)
		if err != nil || !exists {
			continue
		}
		err = store.Delete(ctx, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrReadOnly) {
			return err
		}
	}
	return ErrNotFound
}

func (c *Chain) Exists(ctx context.Context, key string) (bool, error) {
	for _, store := range c.stores {
		exists, err := store.Exists(ctx, key)
		if err == nil && exists {
			return true, nil
		}
	}
	return false, nil
}
