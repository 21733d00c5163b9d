// Package oauth implements OAuth 1.0a request signing (HMAC-SHA1) and the
// three-legged token exchange used to obtain an access token without a
// browser-embedded flow.
//
// Signing follows the platform's reference behaviour byte for byte:
//
//   - all signable parameters are sorted by key and form-encoded
//   - the base string is METHOD&enc(url)&enc(params)
//   - the key is enc(consumerSecret)&enc(tokenSecret)
//   - the signature is base64(HMAC-SHA1(key, base))
//
// Usage:
//
//	signer := oauth.NewSigner(consumerKey, consumerSecret, token, tokenSecret)
//	req, _ := http.NewRequest(http.MethodGet, "https://api.tumblr.com/v2/user/info", nil)
//	if err := signer.SignRequest(req, nil); err != nil {
//	    return err
//	}
package oauth
