package models

import (
	"fmt"
	"time"

	"restaurant-checkout/internal/geo"
)

// DeliveryType represents how an order is fulfilled.
type DeliveryType string

const (
	Delivery DeliveryType = "DELIVERY"
	DineIn   DeliveryType = "DINE_IN"
	Counter  DeliveryType = "COUNTER"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusPrinting        OrderStatus = "PRINTING"
	StatusPreparing       OrderStatus = "PREPARING"
	StatusOutForDelivery  OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered       OrderStatus = "DELIVERED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusEdited          OrderStatus = "EDITED"
	StatusInEdit          OrderStatus = "IN_EDIT"
	StatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
)

// OpenStatuses is the set of states in which an order still holds its
// seating resource and admits item edits.
var OpenStatuses = map[OrderStatus]bool{
	StatusPending:         true,
	StatusPrinting:        true,
	StatusPreparing:       true,
	StatusEdited:          true,
	StatusInEdit:          true,
	StatusAwaitingPayment: true,
}

// IsTerminal reports whether s ends the order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsOpen reports whether s is in the open-status set.
func (s OrderStatus) IsOpen() bool {
	return OpenStatuses[s]
}

// ItemKind discriminates the line-item variant.
type ItemKind string

const (
	ItemProduct ItemKind = "PRODUCT"
	ItemRecipe  ItemKind = "RECIPE"
	ItemBundle  ItemKind = "BUNDLE"
)

// ItemVariant is a tagged union over product, recipe, and bundle
// references. Exactly one reference is set, enforced at construction.
type ItemVariant struct {
	kind ItemKind
	ref  string
}

// NewItemVariant builds a validated variant.
func NewItemVariant(kind ItemKind, ref string) (ItemVariant, error) {
	switch kind {
	case ItemProduct, ItemRecipe, ItemBundle:
	default:
		return ItemVariant{}, fmt.Errorf("unknown item kind: %q", kind)
	}
	if ref == "" {
		return ItemVariant{}, fmt.Errorf("item reference is required for kind %s", kind)
	}
	return ItemVariant{kind: kind, ref: ref}, nil
}

// ProductVariant builds a product-backed variant.
func ProductVariant(ref string) (ItemVariant, error) { return NewItemVariant(ItemProduct, ref) }

// RecipeVariant builds a recipe-backed variant.
func RecipeVariant(ref string) (ItemVariant, error) { return NewItemVariant(ItemRecipe, ref) }

// BundleVariant builds a bundle-backed variant.
func BundleVariant(ref string) (ItemVariant, error) { return NewItemVariant(ItemBundle, ref) }

// Kind returns the variant discriminator.
func (v ItemVariant) Kind() ItemKind { return v.kind }

// Ref returns the catalog reference the variant points at.
func (v ItemVariant) Ref() string { return v.ref }

// LineItemComplementSelection is a priced snapshot of one selected
// complement option.
type LineItemComplementSelection struct {
	GroupID   string  `json:"group_id"`
	OptionID  string  `json:"option_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderLineItem is one priced cart line. UnitPrice is the base price
// only; complement contributions are tracked in ComplementTotal.
type OrderLineItem struct {
	ID              int64
	Variant         ItemVariant
	Quantity        int
	UnitPrice       float64
	ComplementTotal float64
	Description     string
	Complements     []LineItemComplementSelection
}

// LineTotal returns base plus complements for this line.
func (li OrderLineItem) LineTotal() float64 {
	return li.UnitPrice*float64(li.Quantity) + li.ComplementTotal
}

// PaymentConfirmation tracks whether an instrument allocation has been
// confirmed by the payment provider.
type PaymentConfirmation string

const (
	PaymentPending   PaymentConfirmation = "PENDING"
	PaymentConfirmed PaymentConfirmation = "CONFIRMED"
	PaymentDeclined  PaymentConfirmation = "DECLINED"
)

// PaymentInstrumentAllocation is one instrument's share of the total.
type PaymentInstrumentAllocation struct {
	ID           int64
	InstrumentID string
	Amount       float64
	Confirmation PaymentConfirmation
}

// Order is the aggregate root.
type Order struct {
	ID                 int64
	CompanyID          string
	Channel            string
	DeliveryType       DeliveryType
	Status             OrderStatus
	Subtotal           float64
	Discount           float64
	DeliveryFee        float64
	ServiceFee         float64
	TotalAmount        float64
	AddressSnapshot    *AddressSnapshot
	DistanceKm         *float64
	ETA                *time.Time
	SeatingResourceRef *string
	CourierID          *string
	LineItems          []OrderLineItem
	Payments           []PaymentInstrumentAllocation
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AddressSnapshot is the delivery address frozen at checkout time; later
// edits to the customer's address never touch it.
type AddressSnapshot struct {
	Text        string          `json:"text"`
	Coordinates geo.Coordinates `json:"coordinates"`
}

// PaymentConfirmed reports whether every allocation is confirmed and the
// confirmed sum covers the order total within tolerance.
func (o *Order) PaymentConfirmed() bool {
	if len(o.Payments) == 0 {
		return false
	}
	var confirmed float64
	for _, p := range o.Payments {
		if p.Confirmation != PaymentConfirmed {
			return false
		}
		confirmed += p.Amount
	}
	return confirmed >= o.TotalAmount-0.01
}

// RecomputeTotals re-derives subtotal and total from the line items,
// keeping discount and fees. Used after edit cycles on a freshly
// reloaded aggregate rather than trusting in-memory state.
func (o *Order) RecomputeTotals() {
	var subtotal float64
	for _, li := range o.LineItems {
		subtotal += li.LineTotal()
	}
	o.Subtotal = subtotal
	o.TotalAmount = subtotal - o.Discount + o.DeliveryFee + o.ServiceFee
}

// OrderStatusChange is one entry in the order audit trail.
type OrderStatusChange struct {
	FromStatus OrderStatus
	ToStatus   OrderStatus
	ChangedBy  string
	Notes      *string
	ChangedAt  time.Time
}
