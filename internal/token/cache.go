package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// expiryMargin is shaved off the server-declared token lifetime so a token is
// never used in the final seconds before the marketplace rejects it.
const expiryMargin = 60 * time.Second

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*meli.TokenGrant, error)
}

// Cache owns one seller's bearer credential. Access is mutually exclusive:
// concurrent callers wait for an in-flight refresh instead of issuing their
// own.
type Cache struct {
	mu           sync.Mutex
	client       Refresher
	logg         *logger.Logger
	sellerID     int64
	refreshToken string
	accessToken  string
	expiresAt    time.Time
	now          func() time.Time
}

// NewCache builds a token cache for a single seller account.
func NewCache(client Refresher, logg *logger.Logger, sellerID int64, refreshToken string) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("token refresher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token required for seller %d", sellerID)
	}
	return &Cache{
		client:       client,
		logg:         logg,
		sellerID:     sellerID,
		refreshToken: refreshToken,
		now:          time.Now,
	}, nil
}

// SellerID returns the account this cache serves.
func (c *Cache) SellerID() int64 {
	return c.sellerID
}

// AccessToken returns a valid bearer token, refreshing it synchronously when
// absent or expired. A refresh failure propagates; callers must not proceed
// with a stale token.
func (c *Cache) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	logCtx := c.logg.WithSellerID(ctx, c.sellerID)
	c.logg.Info(logCtx, "refreshing marketplace token")

	grant, err := c.client.RefreshToken(ctx, c.refreshToken)
	if err != nil {
		c.logg.Error(logCtx, "token refresh failed", err)
		return "", fmt.Errorf("refresh token for seller %d: %w", c.sellerID, err)
	}

	c.accessToken = grant.AccessToken
	c.expiresAt = c.now().Add(time.Duration(grant.ExpiresIn)*time.Second - expiryMargin)
	if grant.RefreshToken != "" {
		// The marketplace may rotate the refresh token on every exchange.
		c.refreshToken = grant.RefreshToken
	}

	c.logg.Info(logCtx, "marketplace token refreshed")
	return c.accessToken, nil
}
