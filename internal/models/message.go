package models

import "time"

// OrderCreatedMessage announces a committed order to downstream
// consumers.
type OrderCreatedMessage struct {
	OrderID      int64     `json:"order_id"`
	CompanyID    string    `json:"company_id"`
	Channel      string    `json:"channel"`
	DeliveryType string    `json:"delivery_type"`
	Status       string    `json:"status"`
	TotalAmount  float64   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusUpdateMessage announces a lifecycle transition.
type StatusUpdateMessage struct {
	OrderID   int64     `json:"order_id"`
	CompanyID string    `json:"company_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedBy string    `json:"changed_by"`
	Timestamp time.Time `json:"timestamp"`
}

// CourierAssignment is one order handed to a delivery agent.
type CourierAssignment struct {
	OrderID     int64   `json:"order_id"`
	AddressText string  `json:"address_text"`
	TotalAmount float64 `json:"total_amount"`
}

// CourierDigestMessage is the coalesced route digest for one agent;
// repeated assignments inside the debounce window collapse into one of
// these instead of one message per assignment.
type CourierDigestMessage struct {
	CompanyID   string              `json:"company_id"`
	CourierID   string              `json:"courier_id"`
	Assignments []CourierAssignment `json:"assignments"`
	Timestamp   time.Time           `json:"timestamp"`
}

// NewOrderCreatedMessage builds the announcement for a committed order.
func NewOrderCreatedMessage(o *Order) *OrderCreatedMessage {
	return &OrderCreatedMessage{
		OrderID:      o.ID,
		CompanyID:    o.CompanyID,
		Channel:      o.Channel,
		DeliveryType: string(o.DeliveryType),
		Status:       string(o.Status),
		TotalAmount:  o.TotalAmount,
		CreatedAt:    o.CreatedAt,
	}
}

// NewStatusUpdateMessage builds the announcement for a transition.
func NewStatusUpdateMessage(o *Order, oldStatus OrderStatus, changedBy string) *StatusUpdateMessage {
	return &StatusUpdateMessage{
		OrderID:   o.ID,
		CompanyID: o.CompanyID,
		OldStatus: string(oldStatus),
		NewStatus: string(o.Status),
		ChangedBy: changedBy,
		Timestamp: time.Now().UTC(),
	}
}
