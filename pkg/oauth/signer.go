package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"

	nonceBytes = 16
)

// Signer signs outbound requests on behalf of one consumer/token pair
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string

	nonce func() (string, error)
	now   func() time.Time
}

// NewSigner creates a signer. token and tokenSecret may be empty for the
// request-token leg of the exchange.
func NewSigner(consumerKey, consumerSecret, token, tokenSecret string) *Signer {
	return &Signer{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Token:          token,
		TokenSecret:    tokenSecret,
		nonce:          NewNonce,
		now:            time.Now,
	}
}

// WithClock returns a copy of the signer using fixed nonce and clock sources
func (s *Signer) WithClock(nonce func() (string, error), now func() time.Time) *Signer {
	c := *s
	c.nonce = nonce
	c.now = now
	return &c
}

// Sign computes the signature for method/rawURL over params using the
// signer's secrets
func (s *Signer) Sign(method, rawURL string, params map[string]string) string {
	return Signature(method, rawURL, params, s.ConsumerSecret, s.TokenSecret)
}

// OAuthParams returns a fresh set of protocol parameters (new nonce and
// timestamp) merged with extra, e.g. oauth_callback or oauth_verifier
func (s *Signer) OAuthParams(extra map[string]string) (map[string]string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	params := map[string]string{
		"oauth_consumer_key":     s.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_version":          Version,
	}
	if s.Token != "" {
		params["oauth_token"] = s.Token
	}
	for k, v := range extra {
		params[k] = v
	}
	return params, nil
}

// SignRequest adds an Authorization header to req. Query parameters of the
// request URL are included in the signature but not in the header.
func (s *Signer) SignRequest(req *http.Request, extra map[string]string) error {
	oauthParams, err := s.OAuthParams(extra)
	if err != nil {
		return err
	}

	signable := make(map[string]string, len(oauthParams))
	for k, v := range oauthParams {
		signable[k] = v
	}
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			signable[k] = vs[0]
		}
	}

	oauthParams["oauth_signature"] = s.Sign(req.Method, BaseURL(req.URL), signable)
	req.Header.Set("Authorization", AuthorizationHeader(oauthParams))
	return nil
}

// Signature is the pure signing function:
// base64(HMAC-SHA1(enc(cs)&enc(ts), METHOD&enc(url)&enc(sorted form-encoded params)))
func Signature(method, rawURL string, params map[string]string, consumerSecret, tokenSecret string) string {
	base := BaseString(method, rawURL, params)
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BaseString builds the signature base string
func BaseString(method, rawURL string, params map[string]string) string {
	return strings.ToUpper(method) + "&" + PercentEncode(rawURL) + "&" + PercentEncode(ParameterString(params))
}

// ParameterString sorts params by key and form-encodes them
func ParameterString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(pairs, "&")
}

// PercentEncode escapes everything except the RFC 3986 unreserved set
func PercentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// AuthorizationHeader renders `OAuth k="v", ...` with every value percent-encoded
func AuthorizationHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, PercentEncode(params[k])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// BaseURL strips query and fragment and lower-cases scheme and host
func BaseURL(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
}

// NewNonce returns 16 random bytes rendered as hex
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
