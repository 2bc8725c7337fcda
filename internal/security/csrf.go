package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSecret  = errors.New("CSRF secret is not configured")
	ErrMissingToken   = errors.New("missing CSRF token")
	ErrInvalidToken   = errors.New("invalid CSRF token")
	ErrExpiredToken   = errors.New("expired CSRF token")
	ErrInvalidSession = errors.New("CSRF token bound to a different session")
)

const (
	// DefaultMaxAge is the lifetime of a token when none is configured.
	DefaultMaxAge = 24 * time.Hour

	nonceSize     = 32
	minNonceSize  = 16
	tokenSegments = 4
	// Tokens issued slightly in the future are tolerated for replicas whose
	// clocks run behind the issuer.
	clockSkew = time.Minute
)

// Strict decoding rejects non-zero trailing bits, so no two encodings decode
// to the same bytes.
var encoding = base64.RawURLEncoding.Strict()

// TokenManager issues and verifies HMAC-signed CSRF tokens.
//
// A token has the form nonce.timestamp.session.signature where nonce, session
// and signature are base64url without padding and timestamp is milliseconds
// since the epoch. The session segment is empty for tokens that are not bound
// to a session. TokenManager holds no mutable state and is safe for
// concurrent use.
type TokenManager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. An empty secret is a configuration
// error; a non-positive maxAge falls back to DefaultMaxAge.
func NewTokenManager(secret string, maxAge time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	return &TokenManager{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the manager that reads the current time from now.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	clone := *tm
	clone.now = now
	return &clone
}

// MaxAge returns the configured token lifetime.
func (tm *TokenManager) MaxAge() time.Duration {
	return tm.maxAge
}

// Generate mints a new token. sessionID may be empty for tokens that are not
// bound to an authenticated session.
func (tm *TokenManager) Generate(sessionID string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read random nonce: %w", err)
	}

	encodedNonce := encoding.EncodeToString(nonce)
	timestamp := strconv.FormatInt(tm.now().UnixMilli(), 10)
	sig := tm.sign(encodedNonce, timestamp, sessionID)

	return strings.Join([]string{
		encodedNonce,
		timestamp,
		encoding.EncodeToString([]byte(sessionID)),
		encoding.EncodeToString(sig),
	}, "."), nil
}

// Validate checks a single token. Checks run in order: presence, structure,
// session binding, expiry, signature. The returned error is one of
// ErrMissingToken, ErrInvalidToken, ErrInvalidSession or ErrExpiredToken.
func (tm *TokenManager) Validate(token, sessionID string) error {
	if token == "" {
		return ErrMissingToken
	}

	parsed, err := parseToken(token)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(parsed.sessionID), []byte(sessionID)) != 1 {
		return ErrInvalidSession
	}

	issuedAt := time.UnixMilli(parsed.timestamp)
	now := tm.now()
	if now.Sub(issuedAt) > tm.maxAge {
		return ErrExpiredToken
	}
	if issuedAt.After(now.Add(clockSkew)) {
		return ErrInvalidToken
	}

	expected := tm.sign(parsed.nonce, parsed.rawTimestamp, parsed.sessionID)
	if !hmac.Equal(expected, parsed.signature) {
		return ErrInvalidToken
	}

	return nil
}

// ValidatePair implements the double-submit check: the cookie and header
// copies must both be present and identical, and the shared value must itself
// be a valid token for sessionID.
func (tm *TokenManager) ValidatePair(cookieToken, headerToken, sessionID string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrMissingToken
	}

	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrInvalidToken
	}

	return tm.Validate(headerToken, sessionID)
}

func (tm *TokenManager) sign(nonce, timestamp, sessionID string) []byte {
	mac := hmac.New(sha256.New, tm.secret)
	mac.Write([]byte(nonce))
	mac.Write([]byte(":"))
	mac.Write([]byte(timestamp))
	if sessionID != "" {
		mac.Write([]byte(":"))
		mac.Write([]byte(sessionID))
	}
	return mac.Sum(nil)
}

type parsedToken struct {
	nonce        string
	rawTimestamp string
	timestamp    int64
	sessionID    string
	signature    []byte
}

func parseToken(token string) (*parsedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != tokenSegments {
		return nil, ErrInvalidToken
	}

	nonce, err := encoding.DecodeString(parts[0])
	if err != nil || len(nonce) < minNonceSize {
		return nil, ErrInvalidToken
	}

	// Only canonical decimal timestamps are accepted so that every accepted
	// token has exactly one textual form.
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ts <= 0 || strconv.FormatInt(ts, 10) != parts[1] {
		return nil, ErrInvalidToken
	}

	sessionID, err := encoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}

	sig, err := encoding.DecodeString(parts[3])
	if err != nil || len(sig) != sha256.Size {
		return nil, ErrInvalidToken
	}

	return &parsedToken{
		nonce:        parts[0],
		rawTimestamp: parts[1],
		timestamp:    ts,
		sessionID:    string(sessionID),
		signature:    sig,
	}, nil
}
