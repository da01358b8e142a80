package checkout

import (
	"context"
	"sort"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/geo"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

// CenterSelector picks the fulfillment center that serves a delivery
// order.
type CenterSelector struct {
	directory CompanyDirectory
	catalog   CatalogProvider
	resolver  *geo.Resolver
	logger    *logger.Logger
}

// NewCenterSelector creates a selector over the directory, catalog, and
// distance resolver.
func NewCenterSelector(directory CompanyDirectory, catalog CatalogProvider, resolver *geo.Resolver, log *logger.Logger) *CenterSelector {
	return &CenterSelector{
		directory: directory,
		catalog:   catalog,
		resolver:  resolver,
		logger:    log,
	}
}

// Select filters the company's centers to those with at least one active
// fee band that carry every cart item as active and available, then
// returns the nearest survivor and its distance. Ties break by ascending
// center id. A pinned center is honored only if it survives the filters;
// otherwise the nearest valid center silently takes over.
func (s *CenterSelector) Select(
	ctx context.Context,
	companyID string,
	deliveryCoords geo.Coordinates,
	cartItems []models.ItemVariant,
	pinnedCenterID *string,
	requestID string,
) (*models.FulfillmentCenter, float64, error) {
	centers, err := s.directory.List(ctx, companyID)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err, "listing fulfillment centers")
	}

	survivors := make([]models.FulfillmentCenter, 0, len(centers))
	for _, center := range centers {
		if len(center.FeeBands) == 0 {
			continue
		}
		ok, err := s.carriesAllItems(ctx, center.ID, cartItems)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			survivors = append(survivors, center)
		}
	}

	if len(survivors) == 0 {
		return nil, 0, apperr.New(apperr.Range, apperr.CodeNoFulfillmentCenter,
			"no fulfillment center can serve this cart for company %s", companyID)
	}

	if pinnedCenterID != nil {
		for i := range survivors {
			if survivors[i].ID == *pinnedCenterID {
				distance, err := s.resolver.DistanceKm(ctx, survivors[i].Coordinates, deliveryCoords, geo.ModeDriving)
				if err != nil {
					return nil, 0, err
				}
				return &survivors[i], distance, nil
			}
		}
		s.logger.Warn("pinned_center_overridden",
			"Pinned center did not survive eligibility filters; selecting nearest", requestID,
			map[string]interface{}{"pinned_center_id": *pinnedCenterID, "company_id": companyID})
	}

	// Stable order so distance ties resolve to the lowest center id.
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].ID < survivors[j].ID })

	var (
		best        *models.FulfillmentCenter
		bestKm      float64
		lastDistErr error
	)
	for i := range survivors {
		distance, err := s.resolver.DistanceKm(ctx, survivors[i].Coordinates, deliveryCoords, geo.ModeDriving)
		if err != nil {
			lastDistErr = err
			s.logger.Warn("center_distance_failed", "Skipping center with failed distance lookup", requestID,
				map[string]interface{}{"center_id": survivors[i].ID})
			continue
		}
		if best == nil || distance < bestKm {
			best = &survivors[i]
			bestKm = distance
		}
	}

	if best == nil {
		if lastDistErr != nil {
			return nil, 0, lastDistErr
		}
		return nil, 0, apperr.New(apperr.Range, apperr.CodeNoFulfillmentCenter,
			"no fulfillment center reachable for company %s", companyID)
	}

	return best, bestKm, nil
}

func (s *CenterSelector) carriesAllItems(ctx context.Context, centerID string, cartItems []models.ItemVariant) (bool, error) {
	for _, variant := range cartItems {
		item, err := s.catalog.Resolve(ctx, variant, centerID)
		if err != nil {
			return false, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err,
				"catalog lookup failed for center %s", centerID)
		}
		if item == nil || !item.IsActive || !item.IsAvailable {
			return false, nil
		}
	}
	return true, nil
}
