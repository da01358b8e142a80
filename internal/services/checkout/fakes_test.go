package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"restaurant-checkout/internal/cache"
	"restaurant-checkout/internal/geo"
	"restaurant-checkout/internal/models"
)

type fakeDirectory struct {
	centers []models.FulfillmentCenter
}

func (d *fakeDirectory) List(_ context.Context, _ string) ([]models.FulfillmentCenter, error) {
	return d.centers, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, centerID string) (*models.FulfillmentCenter, error) {
	for i := range d.centers {
		if d.centers[i].ID == centerID {
			return &d.centers[i], nil
		}
	}
	return nil, nil
}

func variantKey(v models.ItemVariant) string {
	return fmt.Sprintf("%s:%s", v.Kind(), v.Ref())
}

type fakeCatalog struct {
	mu    sync.Mutex
	items map[string]map[string]*models.CatalogItem // centerID -> kind:ref
	calls int
}

func (c *fakeCatalog) Resolve(_ context.Context, variant models.ItemVariant, centerID string) (*models.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	byCenter, ok := c.items[centerID]
	if !ok {
		return nil, nil
	}
	return byCenter[variantKey(variant)], nil
}

type fakeComplements struct {
	groups map[string][]models.ComplementGroup // kind:ref
}

func (c *fakeComplements) ListGroupsFor(_ context.Context, variant models.ItemVariant, _ string) ([]models.ComplementGroup, error) {
	return c.groups[variantKey(variant)], nil
}

type fakeCoupons struct {
	coupons map[string]*models.Coupon
}

func (c *fakeCoupons) GetByCode(_ context.Context, _, code string) (*models.Coupon, error) {
	return c.coupons[code], nil
}

type fakeStore struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (s *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = int64(len(s.orders) + 1)
	order.CreatedAt = time.Now().UTC()
	s.orders = append(s.orders, order)
	return nil
}

type fakePublisher struct {
	events chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan string, 16)}
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, _ interface{}, routingKey string) error {
	p.events <- routingKey
	return nil
}

func (p *fakePublisher) PublishNotification(_ context.Context, _ interface{}) error {
	p.events <- "notification"
	return nil
}

// distanceByOrigin returns distances keyed by the origin (center)
// latitude, so tests can place centers at known distances.
type fakeDistance struct {
	mu       sync.Mutex
	coords   geo.Coordinates
	byOrigin map[float64]float64
	calls    int
}

func (f *fakeDistance) Geocode(_ context.Context, _ string) (*geo.Coordinates, error) {
	c := f.coords
	return &c, nil
}

func (f *fakeDistance) DistanceKm(_ context.Context, origin, _ geo.Coordinates, _ geo.TravelMode) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	km, ok := f.byOrigin[origin.Latitude]
	if !ok {
		return nil, nil
	}
	return &km, nil
}

func newTestResolver(p geo.DistanceProvider) *geo.Resolver {
	return geo.NewResolver(p, cache.NewMemoryCache("test"), testLog,
		5*time.Second, 30*time.Second, time.Second)
}
