package auth

import (
	"errors"
	"fmt"

	"tumblrbackup/pkg/config"
)

// TokenPair is the user's long-lived OAuth access token and secret
type TokenPair struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
}

// Valid reports whether both halves are present
func (t *TokenPair) Valid() bool {
	return t != nil && t.AccessToken != "" && t.AccessTokenSecret != ""
}

// TokenStore persists a single token pair
type TokenStore interface {
	// Load returns ErrTokensNotFound when nothing is stored
	Load() (*TokenPair, error)
	Save(tokens *TokenPair) error
	Delete() error
	// Name identifies the backend in logs and `auth status`
	Name() string
}

var (
	ErrTokensNotFound   = errors.New("tokens not found")
	ErrInvalidTokens    = errors.New("invalid tokens")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// Manager reads tokens from a chain of stores and writes to the first one
type Manager struct {
	stores []TokenStore
}

// NewManager wires the configured primary store with the environment as a
// read-only fallback
func NewManager(cfg *config.AuthConfig) (*Manager, error) {
	var primary TokenStore
	switch cfg.Store {
	case config.TokenStoreKeyring:
		ks, err := NewKeyringStore("")
		if err != nil {
			return nil, err
		}
		primary = ks
	case config.TokenStoreEncrypted:
		es, err := NewEncryptedFileStore(cfg.TokenFile)
		if err != nil {
			return nil, err
		}
		primary = es
	case config.TokenStoreFile, "":
		primary = NewFileStore(cfg.TokenFile)
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Store)
	}
	return NewManagerWithStores(primary, NewEnvironmentStore()), nil
}

// NewManagerWithStores builds a manager over explicit stores, first is primary
func NewManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// Load returns the first valid token pair found in the chain
func (m *Manager) Load() (*TokenPair, error) {
	for _, s := range m.stores {
		tokens, err := s.Load()
		if err == nil && tokens.Valid() {
			return tokens, nil
		}
		if err != nil && !errors.Is(err, ErrTokensNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			return nil, fmt.Errorf("%s store: %w", s.Name(), err)
		}
	}
	return nil, ErrTokensNotFound
}

// Save writes tokens to the primary store
func (m *Manager) Save(tokens *TokenPair) error {
	if !tokens.Valid() {
		return ErrInvalidTokens
	}
	if len(m.stores) == 0 {
		return ErrStoreUnavailable
	}
	if err := m.stores[0].Save(tokens); err != nil {
		return fmt.Errorf("failed to save tokens to %s store: %w", m.stores[0].Name(), err)
	}
	return nil
}

// Delete removes tokens from every writable store
func (m *Manager) Delete() error {
	var errs []error
	for _, s := range m.stores {
		err := s.Delete()
		if err == nil || errors.Is(err, ErrTokensNotFound) || errors.Is(err, ErrStoreUnavailable) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s store: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}

// Source names the store that currently holds valid tokens, or "" if none
func (m *Manager) Source() string {
	for _, s := range m.stores {
		if tokens, err := s.Load(); err == nil && tokens.Valid() {
			return s.Name()
		}
	}
	return ""
}

// Primary returns the store that Save writes to
func (m *Manager) Primary() TokenStore {
	if len(m.stores) == 0 {
		return nil
	}
	return m.stores[0]
}

// Mask hides all but the first and last 4 characters
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
