package auth

import "sync"

// MockStore is an in-memory TokenStore with error injection for tests
type MockStore struct {
	mu     sync.Mutex
	tokens *TokenPair
	saves  int

	LoadError   error
	SaveError   error
	DeleteError error
}

func NewMockStore(initial *TokenPair) *MockStore {
	return &MockStore{tokens: initial}
}

func (m *MockStore) Name() string { return "mock" }

func (m *MockStore) Load() (*TokenPair, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return nil, ErrTokensNotFound
	}
	cp := *m.tokens
	return &cp, nil
}

func (m *MockStore) Save(tokens *TokenPair) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tokens
	m.tokens = &cp
	m.saves++
	return nil
}

func (m *MockStore) Delete() error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return ErrTokensNotFound
	}
	m.tokens = nil
	return nil
}

// Saves counts successful Save calls
func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
