package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
)

/* Trello signs every callback with HMAC-SHA1 over the request body
 * concatenated with the callback URL, keyed by the application's API
 * secret, and sends it base64-encoded in the X-Trello-Webhook header.
 *
 * Verification is opt-in: the upstream service predates the header and
 * callbacks authenticate primarily by the (token, model) path pair.
 */

// Header is the request header carrying the callback signature
const Header = "X-Trello-Webhook"

// Compute returns the expected signature for a callback body delivered to
// the given callback URL
func Compute(secret string, body []byte, callbackURL string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(callbackURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature in constant time
func Verify(secret string, body []byte, callbackURL, received string) bool {
	if received == "" {
		return false
	}
	expected := Compute(secret, body, callbackURL)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
