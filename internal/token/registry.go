package token

import (
	"context"
	"fmt"

	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// Registry holds one token cache per managed seller. Sellers absent from the
// registry are unmanaged; their webhook traffic is acknowledged and dropped.
type Registry struct {
	caches map[int64]*Cache
}

// NewRegistry builds a cache per configured seller.
func NewRegistry(client Refresher, logg *logger.Logger, sellers config.SellersConfig) (*Registry, error) {
	caches := make(map[int64]*Cache, len(sellers.RefreshTokens))
	for sellerID, refreshToken := range sellers.RefreshTokens {
		cache, err := NewCache(client, logg, sellerID, refreshToken)
		if err != nil {
			return nil, fmt.Errorf("seller %d: %w", sellerID, err)
		}
		caches[sellerID] = cache
	}
	if len(caches) == 0 {
		return nil, fmt.Errorf("no seller accounts configured")
	}
	logg.Info(context.Background(), fmt.Sprintf("token registry initialized with %d accounts", len(caches)))
	return &Registry{caches: caches}, nil
}

// ForSeller returns the cache for a seller, or false when unmanaged.
func (r *Registry) ForSeller(sellerID int64) (*Cache, bool) {
	cache, ok := r.caches[sellerID]
	return cache, ok
}

// Managed reports whether the seller has a configured account.
func (r *Registry) Managed(sellerID int64) bool {
	_, ok := r.caches[sellerID]
	return ok
}

// AccessToken resolves a valid bearer token for a managed seller, refreshing
// when necessary. Unmanaged sellers are an error.
func (r *Registry) AccessToken(ctx context.Context, sellerID int64) (string, error) {
	cache, ok := r.caches[sellerID]
	if !ok {
		return "", fmt.Errorf("seller %d is not managed", sellerID)
	}
	return cache.AccessToken(ctx)
}

// Size reports the number of managed accounts.
func (r *Registry) Size() int {
	return len(r.caches)
}
