// Package auth validates bearer tokens issued against JWT_SECRET.
//
// The credit engine does not mint its own tokens — a companion identity
// service does — so this package only needs to verify them. The
// verification scheme (HMAC-SHA256 over a canonical payload, constant-time
// comparison) mirrors the receipt-signing pattern used elsewhere in this
// codebase rather than pulling in a JWT library for a single consumer-side
// check.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Claims identifies the caller a bearer token was issued to.
type Claims struct {
	Subject   string `json:"sub"`            // user or agent address
	Role      string `json:"role,omitempty"` // "user", "admin"
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

var (
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: signature mismatch")
	ErrExpiredToken   = errors.New("auth: token expired")
)

// Verifier validates bearer tokens of the form "<payload>.<signature>",
// where payload is base64url(json(Claims)) and signature is
// hex-independent base64url(HMAC-SHA256(secret, payload)).
type Verifier struct {
	secret []byte
}

// NewVerifier creates a token verifier. A Verifier built with an empty
// secret rejects every token — callers should treat that as "auth
// disabled, nothing can authenticate" rather than "auth optional".
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token, returning its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrBadSignature
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformedToken
	}
	payloadB64, sigB64 := parts[0], parts[1]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payloadB64))
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expectedSig), []byte(sigB64)) {
		return nil, ErrBadSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, ErrMalformedToken
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, ErrMalformedToken
	}

	if claims.ExpiresAt > 0 && time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrExpiredToken
	}

	return &claims, nil
}

// Issue mints a bearer token for claims, signed with the verifier's
// secret. Used by tests and local tooling; production tokens normally
// come from the identity service sharing the same JWT_SECRET.
func (v *Verifier) Issue(claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadB64 + "." + sigB64, nil
}
