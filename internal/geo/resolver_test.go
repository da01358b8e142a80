package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/cache"
	"restaurant-checkout/internal/logger"
)

type fakeProvider struct {
	geocodeCalls  int
	distanceCalls int
	coords        *Coordinates
	km            *float64
	geocodeErr    error
	distanceErr   error
}

func (f *fakeProvider) Geocode(_ context.Context, _ string) (*Coordinates, error) {
	f.geocodeCalls++
	return f.coords, f.geocodeErr
}

func (f *fakeProvider) DistanceKm(_ context.Context, _, _ Coordinates, _ TravelMode) (*float64, error) {
	f.distanceCalls++
	return f.km, f.distanceErr
}

func newTestResolver(p DistanceProvider) *Resolver {
	return NewResolver(p, cache.NewMemoryCache("test"), logger.New("test"),
		5*time.Second, 30*time.Second, time.Second)
}

func TestResolve_CachesSuccess(t *testing.T) {
	provider := &fakeProvider{coords: &Coordinates{Latitude: -23.55, Longitude: -46.63}}
	r := newTestResolver(provider)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "Av Paulista 1000, Sao Paulo")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	second, err := r.Resolve(ctx, "Av Paulista 1000, Sao Paulo")
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}

	if first != second {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
	if provider.geocodeCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.geocodeCalls)
	}
}

func TestResolve_UnresolvableCachesFailure(t *testing.T) {
	provider := &fakeProvider{coords: nil}
	r := newTestResolver(provider)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(ctx, "nowhere at all")
		if apperr.CodeOf(err) != apperr.CodeAddressUnresolvable {
			t.Fatalf("expected AddressUnresolvable, got %v", err)
		}
	}
	if provider.geocodeCalls != 1 {
		t.Errorf("expected failure cache to absorb second call, got %d calls", provider.geocodeCalls)
	}
}

func TestResolve_RetriesOnceThenUpstream(t *testing.T) {
	provider := &fakeProvider{geocodeErr: errors.New("connection reset")}
	r := newTestResolver(provider)

	_, err := r.Resolve(context.Background(), "Av Paulista 1000")
	if !apperr.IsKind(err, apperr.Upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if provider.geocodeCalls != 2 {
		t.Errorf("expected exactly one retry (2 calls), got %d", provider.geocodeCalls)
	}
}

func TestDistanceKm_CachesSuccess(t *testing.T) {
	km := 4.2
	provider := &fakeProvider{km: &km}
	r := newTestResolver(provider)
	ctx := context.Background()
	origin := Coordinates{Latitude: -23.55, Longitude: -46.63}
	dest := Coordinates{Latitude: -23.60, Longitude: -46.70}

	for i := 0; i < 3; i++ {
		got, err := r.DistanceKm(ctx, origin, dest, ModeDriving)
		if err != nil {
			t.Fatalf("DistanceKm returned error: %v", err)
		}
		if got != 4.2 {
			t.Errorf("DistanceKm() = %v, want 4.2", got)
		}
	}
	if provider.distanceCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.distanceCalls)
	}
}

func TestDistanceKm_ProviderFailure(t *testing.T) {
	provider := &fakeProvider{distanceErr: errors.New("timeout")}
	r := newTestResolver(provider)

	_, err := r.DistanceKm(context.Background(),
		Coordinates{Latitude: 1}, Coordinates{Latitude: 2}, ModeDriving)
	if !apperr.IsKind(err, apperr.Upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	// Second call hits the failure cache, not the provider.
	_, _ = r.DistanceKm(context.Background(),
		Coordinates{Latitude: 1}, Coordinates{Latitude: 2}, ModeDriving)
	if provider.distanceCalls != 1 {
		t.Errorf("expected failure cache to absorb second call, got %d calls", provider.distanceCalls)
	}
}
