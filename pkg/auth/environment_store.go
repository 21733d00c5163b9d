package auth

import "os"

const (
	EnvAccessToken       = "TUMBLR_ACCESS_TOKEN"
	EnvAccessTokenSecret = "TUMBLR_ACCESS_TOKEN_SECRET"
)

// EnvironmentStore reads tokens from the environment; it cannot persist
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

func (e *EnvironmentStore) Load() (*TokenPair, error) {
	tokens := &TokenPair{
		AccessToken:       os.Getenv(EnvAccessToken),
		AccessTokenSecret: os.Getenv(EnvAccessTokenSecret),
	}
	if !tokens.Valid() {
		return nil, ErrTokensNotFound
	}
	return tokens, nil
}

func (e *EnvironmentStore) Save(*TokenPair) error { return ErrStoreUnavailable }
func (e *EnvironmentStore) Delete() error         { return ErrStoreUnavailable }
