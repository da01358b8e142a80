package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"restaurant-checkout/internal/cache"
	"restaurant-checkout/internal/models"
)

// PreviewCache memoizes preview results for a short TTL so repeated
// identical preview requests return bit-identical totals without
// re-pricing or re-querying the distance provider.
type PreviewCache struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewPreviewCache creates a preview cache with the given TTL.
func NewPreviewCache(c cache.Cache, ttl time.Duration) *PreviewCache {
	return &PreviewCache{cache: c, ttl: ttl}
}

// Key derives a stable hash of the payload's pricing-relevant identity.
func (pc *PreviewCache) Key(req *models.CreateOrderRequest) string {
	payload, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	h.Write(payload)
	return pc.cache.GenerateKey("preview", fmt.Sprintf("%x", h.Sum64()))
}

// Get returns the cached preview for key, or nil on a miss.
func (pc *PreviewCache) Get(ctx context.Context, key string) *models.PreviewView {
	if key == "" {
		return nil
	}
	cached, err := pc.cache.Get(ctx, key)
	if err != nil || cached == "" {
		return nil
	}
	var view models.PreviewView
	if err := json.Unmarshal([]byte(cached), &view); err != nil {
		return nil
	}
	return &view
}

// Put stores a preview under key for the configured TTL.
func (pc *PreviewCache) Put(ctx context.Context, key string, view *models.PreviewView) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = pc.cache.Set(ctx, key, string(payload), pc.ttl)
}
