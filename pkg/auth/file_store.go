package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the token pair as JSON in a single file readable only by
// the owner
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Name() string { return "file" }

// Path returns the token file location
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() (*TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokensNotFound
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokens TokenPair
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if !tokens.Valid() {
		return nil, ErrTokensNotFound
	}
	return &tokens, nil
}

func (f *FileStore) Save(tokens *TokenPair) error {
	if !tokens.Valid() {
		return ErrInvalidTokens
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFileAtomic(f.path, data)
}

func (f *FileStore) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrTokensNotFound
		}
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data next to path then renames it into place
func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
