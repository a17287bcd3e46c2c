package calendar

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// expirySkew is how close to expiry a token may be before it is
// treated as expiring-soon and refreshed ahead of use.
const expirySkew = 2 * time.Minute

// TokenCredentials implements Credentials on top of an oauth2 token
// source. The source is expected to be a refreshing source (e.g. one
// built from oauth2.Config.TokenSource); Refresh forces a new token
// fetch by dropping the cached one.
type TokenCredentials struct {
	src    oauth2.TokenSource
	logger *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

// NewTokenCredentials wraps an oauth2 token source.
func NewTokenCredentials(src oauth2.TokenSource, logger *zap.Logger) *TokenCredentials {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCredentials{
		src:    src,
		logger: logger,
		now:    time.Now,
	}
}

// IsValid reports whether the cached credential is usable and not
// within the expiry skew window.
func (c *TokenCredentials) IsValid(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok := c.token
	if tok == nil {
		var err error
		tok, err = c.src.Token()
		if err != nil {
			c.logger.Debug("token fetch failed", zap.Error(err))
			return false
		}
		c.token = tok
	}

	if !tok.Valid() {
		return false
	}
	// Non-expiring tokens (zero expiry) are always valid.
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.After(c.now().Add(expirySkew))
}

// Refresh drops the cached token and fetches a fresh one. Returns
// false when the user must sign in again.
func (c *TokenCredentials) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = nil
	tok, err := c.src.Token()
	if err != nil {
		c.logger.Warn("credential refresh failed", zap.Error(err))
		return false
	}
	c.token = tok
	return tok.Valid()
}

var _ Credentials = (*TokenCredentials)(nil)
