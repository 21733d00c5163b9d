package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeFullFlow(t *testing.T) {
	var sawCallback, sawVerifier bool

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth := r.Header.Get("Authorization")
		sawCallback = strings.Contains(auth, "oauth_callback=")
		assert.NotContains(t, auth, "oauth_token=")
		w.Write([]byte("oauth_token=req&oauth_token_secret=reqsecret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		sawVerifier = strings.Contains(auth, `oauth_verifier="v123"`)
		assert.Contains(t, auth, `oauth_token="req"`)
		w.Write([]byte("oauth_token=acc&oauth_token_secret=accsecret"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ex := NewExchange(server.Client(), server.URL+"/oauth/", "ck", "cs", "http://localhost:4567/callback", logger.NewTestLogger())

	reqTok, err := ex.RequestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "req", reqTok.Token)
	assert.Equal(t, "reqsecret", reqTok.Secret)
	assert.True(t, sawCallback)

	assert.Equal(t, server.URL+"/oauth/authorize?oauth_token=req", ex.AuthorizeURL(reqTok.Token))

	accTok, err := ex.AccessToken(context.Background(), reqTok, "v123")
	require.NoError(t, err)
	assert.Equal(t, &Credentials{Token: "acc", Secret: "accsecret"}, accTok)
	assert.True(t, sawVerifier)
}

func TestExchangeRejectedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("oauth_signature does not match"))
	}))
	defer server.Close()

	ex := NewExchange(server.Client(), server.URL, "ck", "bad", "", logger.NewTestLogger())
	_, err := ex.RequestToken(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Contains(t, err.Error(), "401")
}

func TestExchangeMissingTokenInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("oauth_callback_confirmed=true"))
	}))
	defer server.Close()

	ex := NewExchange(server.Client(), server.URL, "ck", "cs", "", logger.NewTestLogger())
	_, err := ex.RequestToken(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}
