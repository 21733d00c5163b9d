package tumblr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/oauth"
	"tumblrbackup/pkg/retry"
)

const (
	DefaultBaseURL = "https://api.tumblr.com/v2"

	endpointInfo  = "user_info"
	endpointPosts = "blog_posts"

	maxBodyBytes = 32 << 20
)

// Credentials is the consumer/access quadruple every signed call needs
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Validate fails with an auth error if any part is missing
func (c Credentials) Validate() error {
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return apperrors.NewAuthError("missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Options configures a Client; zero values take defaults
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      *retry.Policy
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Client performs OAuth-signed calls against the platform's v2 API
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     *oauth.Signer
	retry      *retry.Policy
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// NewClient validates creds and builds a client
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	policy := opts.Retry
	if policy == nil {
		policy = retry.DefaultPolicy()
		policy.Logger = log
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     oauth.NewSigner(creds.ConsumerKey, creds.ConsumerSecret, creds.AccessToken, creds.AccessTokenSecret),
		retry:      policy,
		logger:     log,
		metrics:    opts.Metrics,
	}, nil
}

// Info fetches the authenticated account and its blogs. It doubles as the
// identity check for a token pair.
func (c *Client) Info(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if err := c.getJSON(ctx, endpointInfo, "/user/info", nil, &info); err != nil {
		return nil, err
	}
	if info.User == nil {
		return nil, apperrors.NewAuthError("account info response has no user", nil)
	}
	return &info, nil
}

// Posts fetches one page of a blog's posts
func (c *Client) Posts(ctx context.Context, blog string, limit, offset int) (*PostsPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var page PostsPage
	path := "/blog/" + url.PathEscape(BlogIdentifier(blog)) + "/posts"
	if err := c.getJSON(ctx, endpointPosts, path, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// BlogIdentifier turns a short blog name into its hostname form
func BlogIdentifier(blog string) string {
	if strings.Contains(blog, ".") {
		return blog
	}
	return blog + ".tumblr.com"
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, target interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.getOnce(ctx, endpoint, path, query, target)
	})
}

func (c *Client) getOnce(ctx context.Context, endpoint, path string, query url.Values, target interface{}) error {
	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return apperrors.NewRemoteAPIError("failed to create request", 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tumblr-backup")
	// Each attempt gets a fresh nonce and timestamp
	if err := c.signer.SignRequest(req, nil); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.metrics.ObserveAPIRequest(endpoint, 0, duration)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.WarnWithFields("API request failed", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("%s request failed", endpoint),
			Err:     apperrors.NewRemoteAPIError("network error", 0, err),
		}
	}
	defer resp.Body.Close()
	c.metrics.ObserveAPIRequest(endpoint, resp.StatusCode, duration)

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: "failed to read response body",
			Code:    resp.StatusCode,
			Err:     apperrors.NewRemoteAPIError("truncated response", resp.StatusCode, err),
		}
	}

	if err := c.checkResponseStatus(endpoint, resp.StatusCode, body); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.parseError(endpoint, resp.StatusCode, body, err)
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return apperrors.NewRemoteAPIError(endpoint+" response has no body", resp.StatusCode, nil)
	}
	if err := json.Unmarshal(env.Response, target); err != nil {
		return c.parseError(endpoint, resp.StatusCode, body, err)
	}
	return nil
}

// checkResponseStatus classifies a non-2xx status. 401/403 mean the token
// pair was rejected; 429 and 5xx are transient; anything else is final.
func (c *Client) checkResponseStatus(endpoint string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := statusMessage(status, body)
	fields := map[string]interface{}{
		"endpoint": endpoint,
		"status":   status,
		"message":  msg,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.logger.WarnWithFields("API rejected credentials", fields)
		return &apperrors.Error{Type: apperrors.ErrorTypeAuth, Message: msg, Code: status}
	case status == http.StatusTooManyRequests:
		c.logger.WarnWithFields("API rate limit exceeded", fields)
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeRateLimit,
			Message: msg,
			Code:    status,
			Err:     apperrors.NewRemoteAPIError(msg, status, nil),
		}
	case status >= 500:
		c.logger.WarnWithFields("API server error", fields)
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeServerError,
			Message: msg,
			Code:    status,
			Err:     apperrors.NewRemoteAPIError(msg, status, nil),
		}
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		return apperrors.NewRemoteAPIError(msg, status, nil)
	}
}

func (c *Client) parseError(endpoint string, status int, body []byte, err error) error {
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	c.logger.ErrorWithFields("failed to parse API response", map[string]interface{}{
		"endpoint":     endpoint,
		"status":       status,
		"error":        err.Error(),
		"body_preview": preview,
	})
	return apperrors.NewRemoteAPIError("malformed "+endpoint+" response", status, &apperrors.Error{
		Type:    apperrors.ErrorTypeParsing,
		Message: err.Error(),
		Err:     err,
	})
}

// statusMessage prefers the envelope's meta.msg over the bare status text
func statusMessage(status int, body []byte) string {
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Meta.Msg != "" {
		return env.Meta.Msg
	}
	return http.StatusText(status)
}
