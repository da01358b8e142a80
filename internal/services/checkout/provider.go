package checkout

import (
	"context"

	"restaurant-checkout/internal/models"
)

// CatalogProvider resolves a line-item variant against one fulfillment
// center's catalog. A nil item with a nil error means the reference does
// not exist there.
type CatalogProvider interface {
	Resolve(ctx context.Context, variant models.ItemVariant, centerID string) (*models.CatalogItem, error)
}

// ComplementCatalogProvider lists the complement groups configured for a
// catalog item.
type ComplementCatalogProvider interface {
	ListGroupsFor(ctx context.Context, variant models.ItemVariant, centerID string) ([]models.ComplementGroup, error)
}

// CompanyDirectory lists fulfillment centers.
type CompanyDirectory interface {
	List(ctx context.Context, companyID string) ([]models.FulfillmentCenter, error)
	GetByID(ctx context.Context, centerID string) (*models.FulfillmentCenter, error)
}

// CouponStore looks up coupons by code. A nil coupon with a nil error
// means the code is unknown.
type CouponStore interface {
	GetByCode(ctx context.Context, companyID, code string) (*models.Coupon, error)
}

// ChargeResult is the payment provider's answer to a capture attempt.
type ChargeResult struct {
	Status       string
	ProviderTxID string
}

// Charge statuses reported by payment gateways.
const (
	ChargeConfirmed = "CONFIRMED"
	ChargeDeclined  = "DECLINED"
)

// PaymentGateway captures a payment for an order.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID int64, amount float64, method string) (*ChargeResult, error)
}

// EventPublisher is the slice of the messaging publisher the checkout
// engine needs; satisfied by messaging.Publisher.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, msg interface{}, routingKey string) error
	PublishNotification(ctx context.Context, msg interface{}) error
}
