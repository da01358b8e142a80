package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-checkout/internal/database"
	"restaurant-checkout/internal/models"
)

// Repository reads and mutates persisted orders.
type Repository struct {
	db *database.DB
}

// NewRepository creates an order repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// querier is satisfied by both the pool wrapper and pgx.Tx so aggregate
// loading works inside and outside transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetOrder loads the full aggregate: order row, line items with their
// complement snapshots, and payment allocations. Returns nil without
// error when the order does not exist.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return loadOrder(ctx, r.db, orderID)
}

func loadOrder(ctx context.Context, q querier, orderID int64) (*models.Order, error) {
	var (
		o           models.Order
		addressJSON []byte
	)
	err := q.QueryRow(ctx, `
		SELECT id, company_id, channel, delivery_type, status, subtotal, discount,
			delivery_fee, service_fee, total_amount, address_snapshot, distance_km,
			eta, seating_resource_ref, courier_id, created_at, updated_at
		FROM orders WHERE id = $1`,
		orderID,
	).Scan(&o.ID, &o.CompanyID, &o.Channel, &o.DeliveryType, &o.Status,
		&o.Subtotal, &o.Discount, &o.DeliveryFee, &o.ServiceFee, &o.TotalAmount,
		&addressJSON, &o.DistanceKm, &o.ETA, &o.SeatingResourceRef, &o.CourierID,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}

	if len(addressJSON) > 0 {
		var snapshot models.AddressSnapshot
		if err := json.Unmarshal(addressJSON, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode address snapshot for order %d: %w", orderID, err)
		}
		o.AddressSnapshot = &snapshot
	}

	if o.LineItems, err = loadLineItems(ctx, q, orderID); err != nil {
		return nil, err
	}
	if o.Payments, err = loadPayments(ctx, q, orderID); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadLineItems(ctx context.Context, q querier, orderID int64) ([]models.OrderLineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, item_kind, item_ref, quantity, unit_price, complement_total, description
		FROM order_line_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []models.OrderLineItem
	for rows.Next() {
		var (
			li   models.OrderLineItem
			kind string
			ref  string
		)
		if err := rows.Scan(&li.ID, &kind, &ref, &li.Quantity,
			&li.UnitPrice, &li.ComplementTotal, &li.Description); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if li.Variant, err = models.NewItemVariant(models.ItemKind(kind), ref); err != nil {
			return nil, fmt.Errorf("corrupt line item %d: %w", li.ID, err)
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line items: %w", err)
	}

	for i := range items {
		if items[i].Complements, err = loadComplements(ctx, q, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func loadComplements(ctx context.Context, q querier, lineItemID int64) ([]models.LineItemComplementSelection, error) {
	rows, err := q.Query(ctx, `
		SELECT group_id, option_id, quantity, unit_price
		FROM line_item_complements WHERE line_item_id = $1 ORDER BY id`,
		lineItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load complements for line item %d: %w", lineItemID, err)
	}
	defer rows.Close()

	var selections []models.LineItemComplementSelection
	for rows.Next() {
		var sel models.LineItemComplementSelection
		if err := rows.Scan(&sel.GroupID, &sel.OptionID, &sel.Quantity, &sel.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan complement selection: %w", err)
		}
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}

func loadPayments(ctx context.Context, q querier, orderID int64) ([]models.PaymentInstrumentAllocation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, instrument_id, amount, confirmation
		FROM payment_allocations WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var payments []models.PaymentInstrumentAllocation
	for rows.Next() {
		var p models.PaymentInstrumentAllocation
		if err := rows.Scan(&p.ID, &p.InstrumentID, &p.Amount, &p.Confirmation); err != nil {
			return nil, fmt.Errorf("failed to scan payment allocation: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// RecordTransition updates the order status and appends the audit-trail
// entry in one transaction.
func (r *Repository) RecordTransition(ctx context.Context, orderID int64, from, to models.OrderStatus, changedBy string, notes *string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return recordTransition(ctx, tx, orderID, from, to, changedBy, notes)
	})
}

func recordTransition(ctx context.Context, tx pgx.Tx, orderID int64, from, to models.OrderStatus, changedBy string, notes *string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		to, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not found", orderID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, changed_by, notes)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, from, to, changedBy, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to append status log: %w", err)
	}
	return nil
}

// RegisterPaymentAndTransition settles the order atomically. A provided
// payment replaces the outstanding pending allocations, keeping the
// allocation sum equal to the order total; without one the allocations
// are left untouched (the caller has verified they are all confirmed).
// The transition lands in the same transaction.
func (r *Repository) RegisterPaymentAndTransition(ctx context.Context, orderID int64, payment *models.PaymentInstrumentAllocation, from, to models.OrderStatus, changedBy string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if payment != nil {
			_, err := tx.Exec(ctx, `
				DELETE FROM payment_allocations
				WHERE order_id = $1 AND confirmation = $2`,
				orderID, models.PaymentPending,
			)
			if err != nil {
				return fmt.Errorf("failed to clear pending allocations: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO payment_allocations (order_id, instrument_id, amount, confirmation)
				VALUES ($1, $2, $3, $4)`,
				orderID, payment.InstrumentID, payment.Amount, models.PaymentConfirmed,
			)
			if err != nil {
				return fmt.Errorf("failed to insert close payment: %w", err)
			}
		}

		notes := "account closed"
		return recordTransition(ctx, tx, orderID, from, to, changedBy, &notes)
	})
}

// ApplyItemEdit mutates one line inside a transaction, then reloads the
// aggregate and re-derives subtotal and total from the stored lines
// before writing them back. Stale in-memory totals never reach the row.
func (r *Repository) ApplyItemEdit(ctx context.Context, orderID int64, action models.EditItemAction, lineItemID int64, item *models.OrderLineItem) (*models.Order, error) {
	var reloaded *models.Order
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		switch action {
		case models.EditAdd:
			if err := insertLineItem(ctx, tx, orderID, item); err != nil {
				return err
			}
		case models.EditUpdate:
			if err := replaceLineItem(ctx, tx, orderID, lineItemID, item); err != nil {
				return err
			}
		case models.EditRemove:
			if err := deleteLineItem(ctx, tx, orderID, lineItemID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown edit action: %s", action)
		}

		o, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %d not found", orderID)
		}
		o.RecomputeTotals()

		_, err = tx.Exec(ctx, `
			UPDATE orders SET subtotal = $1, total_amount = $2, updated_at = NOW()
			WHERE id = $3`,
			o.Subtotal, o.TotalAmount, orderID,
		)
		if err != nil {
			return fmt.Errorf("failed to update order totals: %w", err)
		}
		reloaded = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reloaded, nil
}

func insertLineItem(ctx context.Context, tx pgx.Tx, orderID int64, li *models.OrderLineItem) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO order_line_items (order_id, item_kind, item_ref, quantity,
			unit_price, complement_total, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		orderID, li.Variant.Kind(), li.Variant.Ref(), li.Quantity,
		li.UnitPrice, li.ComplementTotal, li.Description,
	).Scan(&li.ID)
	if err != nil {
		return fmt.Errorf("failed to insert line item: %w", err)
	}
	return insertComplements(ctx, tx, li.ID, li.Complements)
}

func replaceLineItem(ctx context.Context, tx pgx.Tx, orderID, lineItemID int64, li *models.OrderLineItem) error {
	tag, err := tx.Exec(ctx, `
		UPDATE order_line_items
		SET item_kind = $1, item_ref = $2, quantity = $3, unit_price = $4,
			complement_total = $5, description = $6
		WHERE id = $7 AND order_id = $8`,
		li.Variant.Kind(), li.Variant.Ref(), li.Quantity, li.UnitPrice,
		li.ComplementTotal, li.Description, lineItemID, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line item %d not found on order %d", lineItemID, orderID)
	}

	_, err = tx.Exec(ctx, `DELETE FROM line_item_complements WHERE line_item_id = $1`, lineItemID)
	if err != nil {
		return fmt.Errorf("failed to clear complement selections: %w", err)
	}
	return insertComplements(ctx, tx, lineItemID, li.Complements)
}

func deleteLineItem(ctx context.Context, tx pgx.Tx, orderID, lineItemID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM line_item_complements WHERE line_item_id = $1`, lineItemID)
	if err != nil {
		return fmt.Errorf("failed to clear complement selections: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM order_line_items WHERE id = $1 AND order_id = $2`,
		lineItemID, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line item %d not found on order %d", lineItemID, orderID)
	}
	return nil
}

func insertComplements(ctx context.Context, tx pgx.Tx, lineItemID int64, selections []models.LineItemComplementSelection) error {
	for _, sel := range selections {
		_, err := tx.Exec(ctx, `
			INSERT INTO line_item_complements (line_item_id, group_id, option_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			lineItemID, sel.GroupID, sel.OptionID, sel.Quantity, sel.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert complement selection: %w", err)
		}
	}
	return nil
}

// CountOpenSiblings counts orders still holding the given seating
// resource.
func (r *Repository) CountOpenSiblings(ctx context.Context, companyID, seatingRef string) (int, error) {
	statuses := make([]string, 0, len(models.OpenStatuses))
	for s := range models.OpenStatuses {
		statuses = append(statuses, string(s))
	}

	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE company_id = $1 AND seating_resource_ref = $2 AND status = ANY($3)`,
		companyID, seatingRef, statuses,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open orders for seating %s: %w", seatingRef, err)
	}
	return count, nil
}

// ReleaseSeating marks the seating resource free.
func (r *Repository) ReleaseSeating(ctx context.Context, companyID, seatingRef string) error {
	err := r.db.Exec(ctx, `
		UPDATE seating_resources SET occupied = FALSE
		WHERE ref = $1 AND company_id = $2`,
		seatingRef, companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to release seating %s: %w", seatingRef, err)
	}
	return nil
}

// AssignCourier sets or clears the order's delivery agent.
func (r *Repository) AssignCourier(ctx context.Context, orderID int64, courierID *string) error {
	err := r.db.Exec(ctx, `
		UPDATE orders SET courier_id = $1, updated_at = NOW() WHERE id = $2`,
		courierID, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign courier on order %d: %w", orderID, err)
	}
	return nil
}
