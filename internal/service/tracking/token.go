package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Tokens builds and verifies the signed values embedded in sent mail: the
// open pixel URL, wrapped click URLs, and the unsubscribe token. All three
// share one scheme: base64url payload plus a truncated HMAC-SHA256.
type Tokens struct {
	key     []byte
	baseURL string
}

// NewTokens creates a token codec for the given signing key and public
// tracking base URL (no trailing slash).
func NewTokens(signingKey, baseURL string) *Tokens {
	return &Tokens{key: []byte(signingKey), baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *Tokens) sign(data string) string {
	h := hmac.New(sha256.New, t.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (t *Tokens) verify(data, signature string) bool {
	expected := t.sign(data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (t *Tokens) encode(parts ...string) (encoded, sig string) {
	data := strings.Join(parts, "|")
	return base64.URLEncoding.EncodeToString([]byte(data)), t.sign(data)
}

// decode verifies the signature and splits the payload into exactly want
// parts. Any failure returns ErrInvalidToken.
func (t *Tokens) decode(encoded, sig string, want int) ([]string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	data := string(raw)
	if !t.verify(data, sig) {
		return nil, ErrInvalidToken
	}
	parts := strings.Split(data, "|")
	if len(parts) != want {
		return nil, ErrInvalidToken
	}
	return parts, nil
}

// PixelURL returns the 1×1 open-tracking image URL for one recipient.
func (t *Tokens) PixelURL(newsletterID, subscriberID string) string {
	encoded, sig := t.encode(newsletterID, subscriberID)
	return fmt.Sprintf("%s/t/open/%s/%s", t.baseURL, encoded, sig)
}

// DecodeOpen reverses PixelURL's path segments.
func (t *Tokens) DecodeOpen(encoded, sig string) (newsletterID, subscriberID string, err error) {
	parts, err := t.decode(encoded, sig, 2)
	if err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

// ClickURL returns a tracked redirect wrapping target for one recipient.
// The target is part of the signed payload, so a tracked link cannot be
// re-pointed after sending.
func (t *Tokens) ClickURL(newsletterID, subscriberID, target string) string {
	encoded, sig := t.encode(newsletterID, subscriberID, target)
	return fmt.Sprintf("%s/t/click/%s/%s", t.baseURL, encoded, sig)
}

// DecodeClick reverses ClickURL's path segments.
func (t *Tokens) DecodeClick(encoded, sig string) (newsletterID, subscriberID, target string, err error) {
	parts, err := t.decode(encoded, sig, 3)
	if err != nil {
		return "", "", "", err
	}
	return parts[0], parts[1], parts[2], nil
}

// UnsubscribeToken returns the recipient-specific unsubscribe token: the
// subscriber id, base64-encoded and HMAC-bound so a guessed or altered
// token cannot unsubscribe someone else.
func (t *Tokens) UnsubscribeToken(subscriberID string) string {
	encoded, sig := t.encode(subscriberID)
	return encoded + "." + sig
}

// UnsubscribeURL returns the public unsubscribe link for one recipient of
// one newsletter.
func (t *Tokens) UnsubscribeURL(subscriberID, newsletterID string) string {
	u := fmt.Sprintf("%s/unsubscribe/%s", t.baseURL, t.UnsubscribeToken(subscriberID))
	if newsletterID != "" {
		u += "?n=" + url.QueryEscape(newsletterID)
	}
	return u
}

// ResolveUnsubscribeToken returns the subscriber id a token was built for,
// or ErrInvalidToken for anything malformed or mis-signed.
func (t *Tokens) ResolveUnsubscribeToken(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	parts, err := t.decode(encoded, sig, 1)
	if err != nil {
		return "", err
	}
	if parts[0] == "" {
		return "", ErrInvalidToken
	}
	return parts[0], nil
}
