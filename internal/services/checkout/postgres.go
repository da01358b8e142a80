package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-checkout/internal/database"
	"restaurant-checkout/internal/models"
)

// Repository persists checkout commits.
type Repository struct {
	db *database.DB
}

// NewRepository creates a checkout repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder writes the order, its line items, complement snapshots,
// payment allocations, and the initial status-log entry in a single
// transaction, and occupies the seating resource for dine-in and counter
// orders. Any failure rolls the whole commit back; no partially created
// order is ever visible.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	var addressJSON []byte
	if order.AddressSnapshot != nil {
		payload, err := json.Marshal(order.AddressSnapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal address snapshot: %w", err)
		}
		addressJSON = payload
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (company_id, channel, delivery_type, status, subtotal, discount,
				delivery_fee, service_fee, total_amount, address_snapshot, distance_km, eta,
				seating_resource_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`,
			order.CompanyID, order.Channel, order.DeliveryType, order.Status,
			order.Subtotal, order.Discount, order.DeliveryFee, order.ServiceFee,
			order.TotalAmount, addressJSON, order.DistanceKm, order.ETA,
			order.SeatingResourceRef,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.LineItems {
			li := &order.LineItems[i]
			err := tx.QueryRow(ctx, `
				INSERT INTO order_line_items (order_id, item_kind, item_ref, quantity,
					unit_price, complement_total, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id`,
				order.ID, li.Variant.Kind(), li.Variant.Ref(), li.Quantity,
				li.UnitPrice, li.ComplementTotal, li.Description,
			).Scan(&li.ID)
			if err != nil {
				return fmt.Errorf("failed to insert line item: %w", err)
			}

			for _, sel := range li.Complements {
				_, err := tx.Exec(ctx, `
					INSERT INTO line_item_complements (line_item_id, group_id, option_id, quantity, unit_price)
					VALUES ($1, $2, $3, $4, $5)`,
					li.ID, sel.GroupID, sel.OptionID, sel.Quantity, sel.UnitPrice,
				)
				if err != nil {
					return fmt.Errorf("failed to insert complement selection: %w", err)
				}
			}
		}

		for i := range order.Payments {
			p := &order.Payments[i]
			err := tx.QueryRow(ctx, `
				INSERT INTO payment_allocations (order_id, instrument_id, amount, confirmation)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				order.ID, p.InstrumentID, p.Amount, p.Confirmation,
			).Scan(&p.ID)
			if err != nil {
				return fmt.Errorf("failed to insert payment allocation: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO order_status_log (order_id, from_status, to_status, changed_by, notes)
			VALUES ($1, NULL, $2, $3, $4)`,
			order.ID, order.Status, "checkout", "order created",
		)
		if err != nil {
			return fmt.Errorf("failed to insert initial status: %w", err)
		}

		if order.DeliveryType != models.Delivery && order.SeatingResourceRef != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO seating_resources (ref, company_id, occupied)
				VALUES ($1, $2, TRUE)
				ON CONFLICT (ref, company_id) DO UPDATE SET occupied = TRUE`,
				*order.SeatingResourceRef, order.CompanyID,
			)
			if err != nil {
				return fmt.Errorf("failed to occupy seating resource: %w", err)
			}
		}

		return nil
	})
}
