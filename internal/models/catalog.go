package models

import (
	"time"

	"restaurant-checkout/internal/geo"
)

// CatalogItem is what the catalog collaborator resolves for a variant.
type CatalogItem struct {
	UnitPrice   float64
	IsActive    bool
	IsAvailable bool
	Description string
}

// ComplementOption is one selectable priced option inside a group.
type ComplementOption struct {
	OptionID string
	Name     string
	Price    float64
}

// ComplementGroup is a named modifier category on a catalog item. When
// Quantitative is false a selected option counts at most once.
type ComplementGroup struct {
	GroupID      string
	Name         string
	Required     bool
	Quantitative bool
	Options      []ComplementOption
}

// DeliveryFeeBand is one tariff tier. Bands for a company form an
// ordered, non-overlapping partition by ascending MaxDistanceKm.
type DeliveryFeeBand struct {
	CompanyID     string
	MaxDistanceKm float64
	FeeAmount     float64
	EtaMinutes    int
}

// FulfillmentCenter is a company location able to prepare and dispatch
// orders.
type FulfillmentCenter struct {
	ID          string
	CompanyID   string
	Coordinates geo.Coordinates
	FeeBands    []DeliveryFeeBand
	ServiceFee  float64
}

// CouponKind discriminates fixed-amount from percentage coupons.
type CouponKind string

const (
	CouponFixed      CouponKind = "FIXED"
	CouponPercentage CouponKind = "PERCENTAGE"
)

// Coupon is a discount voucher. Percentage coupons cap at MaxDiscount.
type Coupon struct {
	Code        string
	Kind        CouponKind
	Value       float64
	MaxDiscount float64
	Active      bool
	ExpiresAt   *time.Time
}

// Valid reports whether the coupon can produce a discount at time now.
func (c *Coupon) Valid(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return c.Value > 0
}

// SeatingResource is a table or counter slot bound to dine-in orders.
type SeatingResource struct {
	Ref       string
	CompanyID string
	Occupied  bool
}
