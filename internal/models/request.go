package models

import "fmt"

// PaymentMethodRequiresConfirmation lists methods that need external
// confirmation before the kitchen is notified; orders paid this way start
// in AWAITING_PAYMENT instead of PENDING.
var PaymentMethodRequiresConfirmation = map[string]bool{
	"ONLINE_CARD": true,
	"PIX":         true,
}

// ComplementSelectionRequest is one requested complement option.
type ComplementSelectionRequest struct {
	GroupID  string `json:"group_id"`
	OptionID string `json:"option_id"`
	Quantity int    `json:"quantity"`
}

// CartItemRequest is one requested cart line.
type CartItemRequest struct {
	Kind        string                       `json:"kind"`
	Ref         string                       `json:"ref"`
	Quantity    int                          `json:"quantity"`
	Complements []ComplementSelectionRequest `json:"complements,omitempty"`
}

// PaymentSplitRequest is one instrument's requested share of the total.
type PaymentSplitRequest struct {
	InstrumentID string  `json:"instrument_id"`
	Amount       float64 `json:"amount"`
}

// CreateOrderRequest is the payload for both previewCheckout and
// createOrder.
type CreateOrderRequest struct {
	CompanyID          string                `json:"company_id"`
	Channel            string                `json:"channel"`
	DeliveryType       string                `json:"delivery_type"`
	AddressText        *string               `json:"address_text,omitempty"`
	SeatingResourceRef *string               `json:"seating_resource_ref,omitempty"`
	PinnedCenterID     *string               `json:"pinned_center_id,omitempty"`
	CouponCode         *string               `json:"coupon_code,omitempty"`
	PaymentMethod      string                `json:"payment_method"`
	Payments           []PaymentSplitRequest `json:"payments,omitempty"`
	Items              []CartItemRequest     `json:"items"`
}

// Validate checks the request shape before any pricing work starts.
func (req *CreateOrderRequest) Validate() error {
	if req.CompanyID == "" {
		return fmt.Errorf("company_id is required")
	}

	deliveryType := DeliveryType(req.DeliveryType)
	switch deliveryType {
	case Delivery, DineIn, Counter:
	default:
		return fmt.Errorf("delivery_type must be one of: DELIVERY, DINE_IN, COUNTER")
	}

	if deliveryType == Delivery {
		if req.AddressText == nil || *req.AddressText == "" {
			return fmt.Errorf("address_text is required for DELIVERY orders")
		}
	} else {
		if req.SeatingResourceRef == nil || *req.SeatingResourceRef == "" {
			return fmt.Errorf("seating_resource_ref is required for %s orders", deliveryType)
		}
	}

	if len(req.Items) == 0 {
		return fmt.Errorf("items array cannot be empty")
	}
	if len(req.Items) > 50 {
		return fmt.Errorf("items array cannot contain more than 50 items")
	}
	for i, item := range req.Items {
		if err := validateCartItem(item, i); err != nil {
			return err
		}
	}

	for i, p := range req.Payments {
		if p.InstrumentID == "" {
			return fmt.Errorf("payments[%d].instrument_id is required", i)
		}
		if p.Amount < 0 {
			return fmt.Errorf("payments[%d].amount must not be negative", i)
		}
	}

	return nil
}

func validateCartItem(item CartItemRequest, index int) error {
	prefix := fmt.Sprintf("items[%d]", index)

	if _, err := NewItemVariant(ItemKind(item.Kind), item.Ref); err != nil {
		return fmt.Errorf("%s: %v", prefix, err)
	}
	if item.Quantity < 1 || item.Quantity > 99 {
		return fmt.Errorf("%s.quantity must be between 1 and 99", prefix)
	}
	for j, sel := range item.Complements {
		if sel.GroupID == "" || sel.OptionID == "" {
			return fmt.Errorf("%s.complements[%d] requires group_id and option_id", prefix, j)
		}
		if sel.Quantity < 1 {
			return fmt.Errorf("%s.complements[%d].quantity must be at least 1", prefix, j)
		}
	}
	return nil
}

// EditItemAction selects what editItem does with the payload.
type EditItemAction string

const (
	EditAdd    EditItemAction = "add"
	EditUpdate EditItemAction = "update"
	EditRemove EditItemAction = "remove"
)

// EditItemRequest mutates one line of an open order.
type EditItemRequest struct {
	Action     EditItemAction   `json:"action"`
	LineItemID int64            `json:"line_item_id,omitempty"`
	Item       *CartItemRequest `json:"item,omitempty"`
}

// Validate checks the edit payload shape.
func (req *EditItemRequest) Validate() error {
	switch req.Action {
	case EditAdd:
		if req.Item == nil {
			return fmt.Errorf("item is required for add")
		}
		return validateCartItem(*req.Item, 0)
	case EditUpdate:
		if req.LineItemID == 0 {
			return fmt.Errorf("line_item_id is required for update")
		}
		if req.Item == nil {
			return fmt.Errorf("item is required for update")
		}
		return validateCartItem(*req.Item, 0)
	case EditRemove:
		if req.LineItemID == 0 {
			return fmt.Errorf("line_item_id is required for remove")
		}
		return nil
	default:
		return fmt.Errorf("action must be one of: add, update, remove")
	}
}

// UpdateStatusRequest asks for a lifecycle transition.
type UpdateStatusRequest struct {
	NewStatus string `json:"new_status"`
	ChangedBy string `json:"changed_by"`
}

// ClosePaymentInfo carries the payment registered by closeAccount.
type ClosePaymentInfo struct {
	Method       string  `json:"method"`
	InstrumentID string  `json:"instrument_id"`
	Amount       float64 `json:"amount"`
}

// CloseAccountRequest settles and delivers an unpaid order atomically.
type CloseAccountRequest struct {
	Payment   *ClosePaymentInfo `json:"payment,omitempty"`
	ChangedBy string            `json:"changed_by"`
}

// AssignCourierRequest binds or clears a delivery agent.
type AssignCourierRequest struct {
	CourierID *string `json:"courier_id"`
}
