package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// SessionIssuer mints and verifies the session token that ties one
// coordinator lifetime to its audit trail (AuditEvent.SessionID). It is
// grounded on the teacher's auth.JWTValidator, simplified from a JWKS-backed
// external-IdP verifier to a self-signed HS256 issuer: the kernel is both
// the issuer and the only verifier, so there is no external key to fetch.
type SessionIssuer struct {
	key []byte
	ttl time.Duration
}

// NewSessionIssuer builds an issuer signing with key and expiring tokens
// after ttl. A zero ttl defaults to one hour.
func NewSessionIssuer(key []byte, ttl time.Duration) *SessionIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &SessionIssuer{key: key, ttl: ttl}
}

// Issue mints a signed session token for agentID.
func (s *SessionIssuer) Issue(agentID string) (string, error) {
	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(agentID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("session: failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("session: failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Validate verifies token's signature and expiry and returns the agent ID
// it was issued for.
func (s *SessionIssuer) Validate(token string) (string, error) {
	tok, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, s.key), jwt.WithValidate(true))
	if err != nil {
		return "", fmt.Errorf("session: invalid token: %w", err)
	}
	return tok.Subject(), nil
}

// sessionCache hands out one token per agent ID for the issuer's ttl,
// re-issuing only once a cached token has expired, so a long-lived agent
// does not mint a fresh JWT on every dispatch.
type sessionCache struct {
	issuer *SessionIssuer
	mu     sync.Mutex
	tokens map[string]cachedSession
}

type cachedSession struct {
	token   string
	expires time.Time
}

func newSessionCache(issuer *SessionIssuer) *sessionCache {
	return &sessionCache{issuer: issuer, tokens: make(map[string]cachedSession)}
}

func (c *sessionCache) sessionFor(agentID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.tokens[agentID]; ok && time.Now().Before(cached.expires) {
		return cached.token, nil
	}

	token, err := c.issuer.Issue(agentID)
	if err != nil {
		return "", err
	}
	c.tokens[agentID] = cachedSession{token: token, expires: time.Now().Add(c.issuer.ttl)}
	return token, nil
}
