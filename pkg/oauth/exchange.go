package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
)

// Credentials is a token/secret pair returned by one leg of the exchange
type Credentials struct {
	Token  string
	Secret string
}

// Exchange runs the three-legged OAuth 1.0a flow against the platform's
// request_token / authorize / access_token endpoints
type Exchange struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	callbackURL    string
	logger         logger.Logger
}

// NewExchange creates an exchange rooted at baseURL (e.g. https://www.tumblr.com/oauth)
func NewExchange(httpClient *http.Client, baseURL, consumerKey, consumerSecret, callbackURL string, log logger.Logger) *Exchange {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Exchange{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		callbackURL:    callbackURL,
		logger:         log,
	}
}

// RequestToken performs step 1: obtain a temporary request token
func (e *Exchange) RequestToken(ctx context.Context) (*Credentials, error) {
	signer := NewSigner(e.consumerKey, e.consumerSecret, "", "")
	return e.post(ctx, e.baseURL+"/request_token", signer, map[string]string{
		"oauth_callback": e.callbackURL,
	})
}

// AuthorizeURL is the page the user visits to approve the request token (step 2)
func (e *Exchange) AuthorizeURL(requestToken string) string {
	return e.baseURL + "/authorize?oauth_token=" + url.QueryEscape(requestToken)
}

// AccessToken performs step 3: trade the authorized request token and the
// verifier for a long-lived access token
func (e *Exchange) AccessToken(ctx context.Context, requestToken *Credentials, verifier string) (*Credentials, error) {
	signer := NewSigner(e.consumerKey, e.consumerSecret, requestToken.Token, requestToken.Secret)
	return e.post(ctx, e.baseURL+"/access_token", signer, map[string]string{
		"oauth_verifier": verifier,
	})
}

func (e *Exchange) post(ctx context.Context, endpoint string, signer *Signer, extra map[string]string) (*Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := signer.SignRequest(req, extra); err != nil {
		return nil, err
	}

	e.logger.DebugWithFields("requesting oauth token", map[string]interface{}{
		"endpoint": endpoint,
	})

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewAuthError("token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, apperrors.NewAuthError("failed to read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.WarnWithFields("oauth endpoint rejected request", map[string]interface{}{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		})
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeAuth,
			Message: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Code:    resp.StatusCode,
		}
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperrors.NewAuthError("malformed token response", err)
	}

	creds := &Credentials{
		Token:  values.Get("oauth_token"),
		Secret: values.Get("oauth_token_secret"),
	}
	if creds.Token == "" || creds.Secret == "" {
		return nil, apperrors.NewAuthError("token response missing oauth_token or oauth_token_secret", nil)
	}
	return creds, nil
}
