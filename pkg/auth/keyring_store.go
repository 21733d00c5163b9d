package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "tumblr-backup"

// KeyringStore keeps the token pair in the OS keychain under one account key
type KeyringStore struct {
	account string
}

// NewKeyringStore probes the keychain and fails if it cannot be written
func NewKeyringStore(account string) (*KeyringStore, error) {
	if account == "" {
		account = "default"
	}
	probe := "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("%w: keyring: %v", ErrStoreUnavailable, err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{account: account}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Load() (*TokenPair, error) {
	data, err := keyring.Get(keyringService, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrTokensNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var tokens TokenPair
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse keyring entry: %w", err)
	}
	return &tokens, nil
}

func (k *KeyringStore) Save(tokens *TokenPair) error {
	if !tokens.Valid() {
		return ErrInvalidTokens
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := keyring.Set(keyringService, k.account, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Delete() error {
	if err := keyring.Delete(keyringService, k.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrTokensNotFound
		}
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}
