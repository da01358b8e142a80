package order

import (
	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/models"
)

// transitions is the allowed edge set of the order lifecycle. The edges
// out of DELIVERED and CANCELLED are administrative re-opens, recorded in
// the audit trail as exceptions to terminality.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:         {models.StatusPrinting, models.StatusPreparing, models.StatusInEdit, models.StatusCancelled},
	models.StatusPrinting:        {models.StatusPreparing, models.StatusInEdit, models.StatusCancelled},
	models.StatusPreparing:       {models.StatusOutForDelivery, models.StatusDelivered, models.StatusCancelled},
	models.StatusOutForDelivery:  {models.StatusDelivered, models.StatusCancelled},
	models.StatusAwaitingPayment: {models.StatusPending, models.StatusCancelled},
	models.StatusInEdit:          {models.StatusEdited, models.StatusCancelled},
	models.StatusEdited:          {models.StatusPrinting, models.StatusPreparing, models.StatusCancelled},
	models.StatusDelivered:       {models.StatusPrinting},
	models.StatusCancelled:       {models.StatusPrinting},
}

var knownStatuses = map[models.OrderStatus]bool{
	models.StatusPending:         true,
	models.StatusPrinting:        true,
	models.StatusPreparing:       true,
	models.StatusOutForDelivery:  true,
	models.StatusDelivered:       true,
	models.StatusCancelled:       true,
	models.StatusEdited:          true,
	models.StatusInEdit:          true,
	models.StatusAwaitingPayment: true,
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s models.OrderStatus) bool {
	return knownStatuses[s]
}

// CanTransition reports whether the edge from -> to exists.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsAdminReopen reports whether from -> to re-opens a terminal order.
func IsAdminReopen(from, to models.OrderStatus) bool {
	return from.IsTerminal() && to == models.StatusPrinting
}

// ValidateTransition checks the edge set plus the per-order guards:
// OUT_FOR_DELIVERY exists only for delivery orders, and delivery/counter
// orders cannot jump to DELIVERED while payment is unconfirmed; those go
// through the close-account operation instead.
func ValidateTransition(o *models.Order, to models.OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return apperr.New(apperr.Conflict, apperr.CodeInvalidTransition,
			"transition %s -> %s is not allowed", o.Status, to)
	}

	if to == models.StatusOutForDelivery && o.DeliveryType != models.Delivery {
		return apperr.New(apperr.Conflict, apperr.CodeInvalidTransition,
			"%s orders cannot go out for delivery", o.DeliveryType)
	}

	if to == models.StatusDelivered &&
		(o.DeliveryType == models.Delivery || o.DeliveryType == models.Counter) &&
		!o.PaymentConfirmed() {
		return apperr.New(apperr.Conflict, apperr.CodePaymentNotConfirmed,
			"order %d has unconfirmed payment; use close account", o.ID)
	}

	return nil
}
