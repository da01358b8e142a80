package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/cache"
	"restaurant-checkout/internal/logger"
)

// DistanceProvider is the external geocoding/routing collaborator. A nil
// result with a nil error means the provider could not resolve the input.
type DistanceProvider interface {
	Geocode(ctx context.Context, addressText string) (*Coordinates, error)
	DistanceKm(ctx context.Context, origin, dest Coordinates, mode TravelMode) (*float64, error)
}

// failureMarker is what the failure cache stores in place of a payload.
const failureMarker = "!"

// Resolver fronts the DistanceProvider with a short-TTL success cache and
// a longer-TTL failure cache, so repeated identical preview requests do
// not re-query the provider.
type Resolver struct {
	provider   DistanceProvider
	cache      cache.Cache
	logger     *logger.Logger
	successTTL time.Duration
	failureTTL time.Duration
	timeout    time.Duration
}

// NewResolver creates an address resolver with the given cache TTLs.
func NewResolver(provider DistanceProvider, c cache.Cache, log *logger.Logger, successTTL, failureTTL, timeout time.Duration) *Resolver {
	return &Resolver{
		provider:   provider,
		cache:      c,
		logger:     log,
		successTTL: successTTL,
		failureTTL: failureTTL,
		timeout:    timeout,
	}
}

// Resolve geocodes an address, consulting the caches first. On a cache
// miss the provider is queried, with one retry before the failure
// surfaces as an upstream fault. An address the provider cannot resolve
// is cached as a failure and returned as AddressUnresolvable.
func (r *Resolver) Resolve(ctx context.Context, addressText string) (Coordinates, error) {
	key := r.cache.GenerateKey("geocode", hashKey(addressText))

	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
		if cached == failureMarker {
			return Coordinates{}, apperr.New(apperr.NotFound, apperr.CodeAddressUnresolvable,
				"address could not be geocoded: %s", addressText)
		}
		var coords Coordinates
		if err := json.Unmarshal([]byte(cached), &coords); err == nil {
			return coords, nil
		}
	}

	coords, err := r.geocodeWithRetry(ctx, addressText)
	if err != nil {
		return Coordinates{}, err
	}
	if coords == nil {
		_ = r.cache.Set(ctx, key, failureMarker, r.failureTTL)
		return Coordinates{}, apperr.New(apperr.NotFound, apperr.CodeAddressUnresolvable,
			"address could not be geocoded: %s", addressText)
	}

	if payload, err := json.Marshal(coords); err == nil {
		_ = r.cache.Set(ctx, key, string(payload), r.successTTL)
	}
	return *coords, nil
}

func (r *Resolver) geocodeWithRetry(ctx context.Context, addressText string) (*Coordinates, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		coords, err := r.provider.Geocode(callCtx, addressText)
		cancel()
		if err == nil {
			return coords, nil
		}
		lastErr = err
		r.logger.Warn("geocode_retry", "Geocode attempt failed", "", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, lastErr,
		"geocoding failed after retry")
}

// DistanceKm measures the distance between two points, cached under the
// success TTL. Provider failures are cached under the failure TTL.
func (r *Resolver) DistanceKm(ctx context.Context, origin, dest Coordinates, mode TravelMode) (float64, error) {
	key := r.cache.GenerateKey("distance", hashKey(origin.String()+"|"+dest.String()+"|"+string(mode)))

	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" {
		if cached == failureMarker {
			return 0, apperr.New(apperr.Upstream, apperr.CodeProviderFailure,
				"distance lookup recently failed for this route")
		}
		if km, err := strconv.ParseFloat(cached, 64); err == nil {
			return km, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	km, err := r.provider.DistanceKm(callCtx, origin, dest, mode)
	cancel()
	if err != nil {
		_ = r.cache.Set(ctx, key, failureMarker, r.failureTTL)
		return 0, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err, "distance lookup failed")
	}
	if km == nil {
		_ = r.cache.Set(ctx, key, failureMarker, r.failureTTL)
		return 0, apperr.New(apperr.Upstream, apperr.CodeProviderFailure, "distance provider returned no route")
	}

	_ = r.cache.Set(ctx, key, strconv.FormatFloat(*km, 'f', -1, 64), r.successTTL)
	return *km, nil
}

func hashKey(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum64())
}
