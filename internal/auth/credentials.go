package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipnote/clipnote/internal/store"
)

// credentialKey is the durable-store slot holding the signed login token.
const credentialKey = "auth_token"

// expirySkew is subtracted from the token's exp claim so a credential about
// to lapse is not presented to the backend only to bounce with a 401.
const expirySkew = 5 * time.Second

// Credentials manages the durable login token. Decoding is tolerant: any
// token that cannot be parsed, or whose expiry has passed, is evicted from
// storage and reported as absent. No network I/O happens here; the backend
// remains authoritative via its 401 responses.
type Credentials struct {
	store store.Store
	now   func() time.Time
}

func NewCredentials(s store.Store) *Credentials {
	return &Credentials{store: s, now: time.Now}
}

// Token returns the stored credential if it is well formed and not within the
// skew window of its expiry. Invalid or expired tokens are removed as a side
// effect, so repeated checks converge on the same answer.
func (c *Credentials) Token() (string, bool) {
	raw, ok := c.store.Get(credentialKey)
	if !ok || raw == "" {
		return "", false
	}
	exp, ok := tokenExpiry(raw)
	if !ok {
		c.store.Remove(credentialKey)
		return "", false
	}
	if !exp.IsZero() && !c.now().Before(exp.Add(-expirySkew)) {
		c.store.Remove(credentialKey)
		return "", false
	}
	return raw, true
}

// Save overwrites the stored credential.
func (c *Credentials) Save(token string) {
	c.store.Set(credentialKey, token)
}

// Invalidate evicts the stored credential. Called on logout and whenever the
// backend rejects the token with a 401.
func (c *Credentials) Invalidate() {
	c.store.Remove(credentialKey)
}

// tokenExpiry decodes the exp claim without verifying the signature: the
// client holds no signing key, so expiry here is a presentation concern only.
// A token with no exp claim is treated as non-expiring.
func tokenExpiry(raw string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false
	}
	if exp == nil {
		return time.Time{}, true
	}
	return exp.Time, true
}
