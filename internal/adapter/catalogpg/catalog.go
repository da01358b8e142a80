// Package catalogpg backs the checkout catalog collaborators with
// PostgreSQL lookups.
package catalogpg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-checkout/internal/database"
	"restaurant-checkout/internal/models"
)

// Store implements the catalog, complement, center directory, and
// coupon interfaces the checkout engine consumes.
type Store struct {
	db *database.DB
}

// NewStore creates a catalog store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Resolve looks the variant up in one center's catalog. A missing row
// is reported as nil, nil.
func (s *Store) Resolve(ctx context.Context, variant models.ItemVariant, centerID string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.QueryRow(ctx, `
		SELECT unit_price, is_active, is_available, description
		FROM catalog_items
		WHERE center_id = $1 AND item_kind = $2 AND item_ref = $3`,
		centerID, variant.Kind(), variant.Ref(),
	).Scan(&item.UnitPrice, &item.IsActive, &item.IsAvailable, &item.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s %s at center %s: %w",
			variant.Kind(), variant.Ref(), centerID, err)
	}
	return &item, nil
}

// ListGroupsFor returns the complement groups configured for the item,
// options included.
func (s *Store) ListGroupsFor(ctx context.Context, variant models.ItemVariant, centerID string) ([]models.ComplementGroup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT group_id, name, required, quantitative
		FROM complement_groups
		WHERE center_id = $1 AND item_kind = $2 AND item_ref = $3
		ORDER BY group_id`,
		centerID, variant.Kind(), variant.Ref(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list complement groups: %w", err)
	}
	defer rows.Close()

	var groups []models.ComplementGroup
	for rows.Next() {
		var g models.ComplementGroup
		if err := rows.Scan(&g.GroupID, &g.Name, &g.Required, &g.Quantitative); err != nil {
			return nil, fmt.Errorf("failed to scan complement group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read complement groups: %w", err)
	}

	for i := range groups {
		if groups[i].Options, err = s.listOptions(ctx, groups[i].GroupID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *Store) listOptions(ctx context.Context, groupID string) ([]models.ComplementOption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT option_id, name, price
		FROM complement_options
		WHERE group_id = $1
		ORDER BY option_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list options for group %s: %w", groupID, err)
	}
	defer rows.Close()

	var options []models.ComplementOption
	for rows.Next() {
		var o models.ComplementOption
		if err := rows.Scan(&o.OptionID, &o.Name, &o.Price); err != nil {
			return nil, fmt.Errorf("failed to scan complement option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// List returns all fulfillment centers of a company with the company's
// fee bands attached.
func (s *Store) List(ctx context.Context, companyID string) ([]models.FulfillmentCenter, error) {
	bands, err := s.listFeeBands(ctx, companyID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, latitude, longitude, service_fee
		FROM fulfillment_centers
		WHERE company_id = $1
		ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list centers for company %s: %w", companyID, err)
	}
	defer rows.Close()

	var centers []models.FulfillmentCenter
	for rows.Next() {
		var c models.FulfillmentCenter
		if err := rows.Scan(&c.ID, &c.Coordinates.Latitude, &c.Coordinates.Longitude, &c.ServiceFee); err != nil {
			return nil, fmt.Errorf("failed to scan center: %w", err)
		}
		c.CompanyID = companyID
		c.FeeBands = bands
		centers = append(centers, c)
	}
	return centers, rows.Err()
}

// GetByID returns one center, fee bands attached, or nil when unknown.
func (s *Store) GetByID(ctx context.Context, centerID string) (*models.FulfillmentCenter, error) {
	var c models.FulfillmentCenter
	err := s.db.QueryRow(ctx, `
		SELECT id, company_id, latitude, longitude, service_fee
		FROM fulfillment_centers
		WHERE id = $1`,
		centerID,
	).Scan(&c.ID, &c.CompanyID, &c.Coordinates.Latitude, &c.Coordinates.Longitude, &c.ServiceFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load center %s: %w", centerID, err)
	}

	if c.FeeBands, err = s.listFeeBands(ctx, c.CompanyID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) listFeeBands(ctx context.Context, companyID string) ([]models.DeliveryFeeBand, error) {
	rows, err := s.db.Query(ctx, `
		SELECT company_id, max_distance_km, fee_amount, eta_minutes
		FROM delivery_fee_bands
		WHERE company_id = $1
		ORDER BY max_distance_km`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee bands for company %s: %w", companyID, err)
	}
	defer rows.Close()

	var bands []models.DeliveryFeeBand
	for rows.Next() {
		var b models.DeliveryFeeBand
		if err := rows.Scan(&b.CompanyID, &b.MaxDistanceKm, &b.FeeAmount, &b.EtaMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan fee band: %w", err)
		}
		bands = append(bands, b)
	}
	return bands, rows.Err()
}

// GetByCode looks a coupon up. Unknown codes are nil, nil; validity is
// the caller's concern.
func (s *Store) GetByCode(ctx context.Context, companyID, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.QueryRow(ctx, `
		SELECT code, kind, value, max_discount, active, expires_at
		FROM coupons
		WHERE company_id = $1 AND code = $2`,
		companyID, code,
	).Scan(&c.Code, &c.Kind, &c.Value, &c.MaxDiscount, &c.Active, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon %s: %w", code, err)
	}
	return &c, nil
}
