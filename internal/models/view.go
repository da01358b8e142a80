package models

import "time"

// LineItemView is the priced breakdown of one cart line.
type LineItemView struct {
	LineItemID      int64                         `json:"line_item_id,omitempty"`
	Kind            string                        `json:"kind"`
	Ref             string                        `json:"ref"`
	Description     string                        `json:"description"`
	Quantity        int                           `json:"quantity"`
	UnitPrice       float64                       `json:"unit_price"`
	ComplementTotal float64                       `json:"complement_total"`
	LineTotal       float64                       `json:"line_total"`
	Complements     []LineItemComplementSelection `json:"complements,omitempty"`
}

// PreviewView is a non-persisted checkout breakdown.
type PreviewView struct {
	CompanyID   string         `json:"company_id"`
	CenterID    string         `json:"center_id,omitempty"`
	Items       []LineItemView `json:"items"`
	Subtotal    float64        `json:"subtotal"`
	Discount    float64        `json:"discount"`
	DeliveryFee float64        `json:"delivery_fee"`
	ServiceFee  float64        `json:"service_fee"`
	TotalAmount float64        `json:"total_amount"`
	DistanceKm  *float64       `json:"distance_km,omitempty"`
	EtaMinutes  *int           `json:"eta_minutes,omitempty"`
}

// PaymentView is one instrument allocation on an order.
type PaymentView struct {
	InstrumentID string  `json:"instrument_id"`
	Amount       float64 `json:"amount"`
	Confirmation string  `json:"confirmation"`
}

// OrderView is the persisted-order response shape.
type OrderView struct {
	ID                 int64          `json:"id"`
	CompanyID          string         `json:"company_id"`
	Channel            string         `json:"channel"`
	DeliveryType       string         `json:"delivery_type"`
	Status             string         `json:"status"`
	Items              []LineItemView `json:"items"`
	Payments           []PaymentView  `json:"payments,omitempty"`
	Subtotal           float64        `json:"subtotal"`
	Discount           float64        `json:"discount"`
	DeliveryFee        float64        `json:"delivery_fee"`
	ServiceFee         float64        `json:"service_fee"`
	TotalAmount        float64        `json:"total_amount"`
	DistanceKm         *float64       `json:"distance_km,omitempty"`
	ETA                *time.Time     `json:"eta,omitempty"`
	SeatingResourceRef *string        `json:"seating_resource_ref,omitempty"`
	CourierID          *string        `json:"courier_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ViewFromOrder renders the aggregate as an OrderView.
func ViewFromOrder(o *Order) *OrderView {
	view := &OrderView{
		ID:                 o.ID,
		CompanyID:          o.CompanyID,
		Channel:            o.Channel,
		DeliveryType:       string(o.DeliveryType),
		Status:             string(o.Status),
		Subtotal:           o.Subtotal,
		Discount:           o.Discount,
		DeliveryFee:        o.DeliveryFee,
		ServiceFee:         o.ServiceFee,
		TotalAmount:        o.TotalAmount,
		DistanceKm:         o.DistanceKm,
		ETA:                o.ETA,
		SeatingResourceRef: o.SeatingResourceRef,
		CourierID:          o.CourierID,
		CreatedAt:          o.CreatedAt,
	}
	for _, li := range o.LineItems {
		view.Items = append(view.Items, LineItemView{
			LineItemID:      li.ID,
			Kind:            string(li.Variant.Kind()),
			Ref:             li.Variant.Ref(),
			Description:     li.Description,
			Quantity:        li.Quantity,
			UnitPrice:       li.UnitPrice,
			ComplementTotal: li.ComplementTotal,
			LineTotal:       li.LineTotal(),
			Complements:     li.Complements,
		})
	}
	for _, p := range o.Payments {
		view.Payments = append(view.Payments, PaymentView{
			InstrumentID: p.InstrumentID,
			Amount:       p.Amount,
			Confirmation: string(p.Confirmation),
		})
	}
	return view
}
