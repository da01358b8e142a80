package order

import (
	"context"
	"sort"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
	"restaurant-checkout/internal/services/checkout"
)

// amountTolerance absorbs float rounding when comparing money amounts,
// the same slack the split reconciler allows.
const amountTolerance = 0.01

// Store is the persistence surface the lifecycle service needs;
// satisfied by *Repository.
type Store interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	RecordTransition(ctx context.Context, orderID int64, from, to models.OrderStatus, changedBy string, notes *string) error
	RegisterPaymentAndTransition(ctx context.Context, orderID int64, payment *models.PaymentInstrumentAllocation, from, to models.OrderStatus, changedBy string) error
	ApplyItemEdit(ctx context.Context, orderID int64, action models.EditItemAction, lineItemID int64, item *models.OrderLineItem) (*models.Order, error)
	CountOpenSiblings(ctx context.Context, companyID, seatingRef string) (int, error)
	ReleaseSeating(ctx context.Context, companyID, seatingRef string) error
	AssignCourier(ctx context.Context, orderID int64, courierID *string) error
}

// DigestScheduler coalesces courier assignments into per-agent digests;
// satisfied by the notification scheduler.
type DigestScheduler interface {
	Assign(companyID, courierID string, assignment models.CourierAssignment)
}

// Service runs the post-checkout order lifecycle.
type Service struct {
	store     Store
	pricer    *checkout.LineItemPricer
	directory checkout.CompanyDirectory
	gateway   checkout.PaymentGateway
	publisher checkout.EventPublisher
	digests   DigestScheduler
	logger    *logger.Logger
}

// NewService wires the lifecycle service.
func NewService(
	store Store,
	pricer *checkout.LineItemPricer,
	directory checkout.CompanyDirectory,
	gateway checkout.PaymentGateway,
	publisher checkout.EventPublisher,
	digests DigestScheduler,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		pricer:    pricer,
		directory: directory,
		gateway:   gateway,
		publisher: publisher,
		digests:   digests,
		logger:    log,
	}
}

// GetOrder returns the persisted aggregate as a view.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*models.OrderView, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return models.ViewFromOrder(o), nil
}

// UpdateStatus applies one lifecycle transition, appends the audit
// entry, and releases the seating resource when the order leaves the
// open set.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, req *models.UpdateStatusRequest, requestID string) (*models.OrderView, error) {
	to := models.OrderStatus(req.NewStatus)
	if !ValidStatus(to) {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload,
			"unknown status: %q", req.NewStatus)
	}
	changedBy := req.ChangedBy
	if changedBy == "" {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload,
			"changed_by is required")
	}

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(o, to); err != nil {
		return nil, err
	}

	var notes *string
	if IsAdminReopen(o.Status, to) {
		reopen := "administrative re-open of terminal order"
		notes = &reopen
		s.logger.Warn("order_reopened", "Terminal order re-opened", requestID,
			map[string]interface{}{"order_id": orderID, "from": string(o.Status)})
	}

	from := o.Status
	if err := s.store.RecordTransition(ctx, orderID, from, to, changedBy, notes); err != nil {
		return nil, apperr.Wrap(apperr.Internal, apperr.CodeProviderFailure, err,
			"failed to record transition for order %d", orderID)
	}
	o.Status = to

	s.logger.Info("order_status_updated", "Order transitioned", requestID,
		map[string]interface{}{
			"order_id": orderID,
			"from":     string(from),
			"to":       string(to),
		})

	if to.IsTerminal() {
		s.releaseSeatingIfIdle(ctx, o, requestID)
	}
	go s.announceTransition(o, from, changedBy, requestID)

	return models.ViewFromOrder(o), nil
}

// CloseAccount settles an order and delivers it in one transaction. A
// payment in the request is captured through the gateway first; without
// one the order must already be fully confirmed.
func (s *Service) CloseAccount(ctx context.Context, orderID int64, req *models.CloseAccountRequest, requestID string) (*models.OrderView, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		return nil, apperr.New(apperr.Conflict, apperr.CodeInvalidTransition,
			"order %d is already closed", orderID)
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = "system"
	}

	// The registered payment replaces the outstanding pending
	// allocations, so the allocation sum stays equal to the order
	// total. Anything tendered above the outstanding amount is change
	// handed back, not an allocation.
	outstanding := o.TotalAmount
	for _, p := range o.Payments {
		if p.Confirmation == models.PaymentConfirmed {
			outstanding -= p.Amount
		}
	}

	var payment *models.PaymentInstrumentAllocation
	if req.Payment != nil && outstanding > amountTolerance {
		if req.Payment.Amount < outstanding-amountTolerance {
			return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPaymentSplit,
				"payment %.2f does not cover the outstanding %.2f on order %d",
				req.Payment.Amount, outstanding, orderID)
		}

		result, err := s.gateway.Charge(ctx, orderID, req.Payment.Amount, req.Payment.Method)
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err,
				"payment capture failed for order %d", orderID)
		}
		if result.Status != checkout.ChargeConfirmed {
			return nil, apperr.New(apperr.Conflict, apperr.CodePaymentNotConfirmed,
				"payment declined for order %d", orderID)
		}

		instrument := req.Payment.InstrumentID
		if instrument == "" {
			instrument = req.Payment.Method
		}
		payment = &models.PaymentInstrumentAllocation{
			InstrumentID: instrument,
			Amount:       outstanding,
			Confirmation: models.PaymentConfirmed,
		}
	} else if req.Payment == nil && !o.PaymentConfirmed() {
		return nil, apperr.New(apperr.Conflict, apperr.CodePaymentNotConfirmed,
			"order %d has unconfirmed payment and no payment was provided", orderID)
	}

	from := o.Status
	if err := s.store.RegisterPaymentAndTransition(ctx, orderID, payment, from, models.StatusDelivered, changedBy); err != nil {
		return nil, apperr.Wrap(apperr.Internal, apperr.CodeProviderFailure, err,
			"failed to close order %d", orderID)
	}

	o.Status = models.StatusDelivered
	if payment != nil {
		settled := o.Payments[:0]
		for _, p := range o.Payments {
			if p.Confirmation != models.PaymentPending {
				settled = append(settled, p)
			}
		}
		o.Payments = append(settled, *payment)
	}

	s.logger.Info("order_closed", "Account closed and delivered", requestID,
		map[string]interface{}{"order_id": orderID, "from": string(from)})

	s.releaseSeatingIfIdle(ctx, o, requestID)
	go s.announceTransition(o, from, changedBy, requestID)

	return models.ViewFromOrder(o), nil
}

// EditItem mutates one line of an open order. The priced line always
// comes from a fresh catalog lookup, never from client-supplied prices,
// and totals are re-derived from the reloaded aggregate.
func (s *Service) EditItem(ctx context.Context, orderID int64, req *models.EditItemRequest, requestID string) (*models.OrderView, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err)
	}

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.IsOpen() {
		return nil, apperr.New(apperr.Conflict, apperr.CodeOrderNotEditable,
			"order %d is in status %s and cannot be edited", orderID, o.Status)
	}

	if req.Action != models.EditAdd && !hasLineItem(o, req.LineItemID) {
		return nil, apperr.New(apperr.NotFound, apperr.CodeItemNotFound,
			"line item %d not found on order %d", req.LineItemID, orderID)
	}

	var line *models.OrderLineItem
	if req.Action != models.EditRemove {
		center, err := s.defaultCenter(ctx, o.CompanyID)
		if err != nil {
			return nil, err
		}
		line, err = s.pricer.Price(ctx, center.ID, *req.Item, requestID)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.store.ApplyItemEdit(ctx, orderID, req.Action, req.LineItemID, line)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, apperr.CodeProviderFailure, err,
			"failed to apply %s on order %d", req.Action, orderID)
	}

	s.logger.Info("order_item_edited", "Order line edited", requestID,
		map[string]interface{}{
			"order_id": orderID,
			"action":   string(req.Action),
			"total":    updated.TotalAmount,
		})
	return models.ViewFromOrder(updated), nil
}

// AssignCourier binds a delivery agent to the order, or clears the
// binding when courier_id is null. New bindings are fed to the digest
// scheduler instead of being announced one by one.
func (s *Service) AssignCourier(ctx context.Context, orderID int64, req *models.AssignCourierRequest, requestID string) (*models.OrderView, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DeliveryType != models.Delivery {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload,
			"courier assignment applies to DELIVERY orders only")
	}

	if err := s.store.AssignCourier(ctx, orderID, req.CourierID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, apperr.CodeProviderFailure, err,
			"failed to assign courier on order %d", orderID)
	}
	o.CourierID = req.CourierID

	if req.CourierID != nil && s.digests != nil {
		var addressText string
		if o.AddressSnapshot != nil {
			addressText = o.AddressSnapshot.Text
		}
		s.digests.Assign(o.CompanyID, *req.CourierID, models.CourierAssignment{
			OrderID:     o.ID,
			AddressText: addressText,
			TotalAmount: o.TotalAmount,
		})
		s.logger.Info("courier_assigned", "Courier queued for digest", requestID,
			map[string]interface{}{"order_id": orderID, "courier_id": *req.CourierID})
	} else {
		s.logger.Info("courier_cleared", "Courier binding cleared", requestID,
			map[string]interface{}{"order_id": orderID})
	}

	return models.ViewFromOrder(o), nil
}

func (s *Service) load(ctx context.Context, orderID int64) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, apperr.CodeProviderFailure, err,
			"failed to load order %d", orderID)
	}
	if o == nil {
		return nil, apperr.New(apperr.NotFound, apperr.CodeOrderNotFound,
			"order %d not found", orderID)
	}
	return o, nil
}

func hasLineItem(o *models.Order, lineItemID int64) bool {
	for _, li := range o.LineItems {
		if li.ID == lineItemID {
			return true
		}
	}
	return false
}

// defaultCenter is the company's lowest-id center, the same fallback
// checkout uses for non-delivery orders without a pinned center.
func (s *Service) defaultCenter(ctx context.Context, companyID string) (*models.FulfillmentCenter, error) {
	centers, err := s.directory.List(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err,
			"center directory lookup failed for company %s", companyID)
	}
	if len(centers) == 0 {
		return nil, apperr.New(apperr.NotFound, apperr.CodeCompanyNotFound,
			"company %s has no fulfillment centers", companyID)
	}
	sort.Slice(centers, func(i, j int) bool { return centers[i].ID < centers[j].ID })
	return &centers[0], nil
}

// releaseSeatingIfIdle frees the seating resource once no open order
// still references it. The count runs after the transition commit
// without a lock, so two simultaneous closings of the last two orders
// on one table can leave it occupied; staff can re-close either order
// or the next checkout re-occupies it anyway.
func (s *Service) releaseSeatingIfIdle(ctx context.Context, o *models.Order, requestID string) {
	if o.SeatingResourceRef == nil {
		return
	}
	ref := *o.SeatingResourceRef

	open, err := s.store.CountOpenSiblings(ctx, o.CompanyID, ref)
	if err != nil {
		s.logger.Error("seating_release_failed", "Could not count open orders for seating", requestID, err,
			map[string]interface{}{"seating_resource_ref": ref})
		return
	}
	if open > 0 {
		return
	}

	if err := s.store.ReleaseSeating(ctx, o.CompanyID, ref); err != nil {
		s.logger.Error("seating_release_failed", "Could not release seating resource", requestID, err,
			map[string]interface{}{"seating_resource_ref": ref})
		return
	}
	s.logger.Info("seating_released", "Seating resource freed", requestID,
		map[string]interface{}{"seating_resource_ref": ref, "order_id": o.ID})
}

// announceTransition publishes the status update to the orders topic
// and the notifications fanout. Publish failures are logged and
// dropped; the transition itself is already durable.
func (s *Service) announceTransition(o *models.Order, from models.OrderStatus, changedBy, requestID string) {
	ctx := context.Background()
	msg := models.NewStatusUpdateMessage(o, from, changedBy)

	if err := s.publisher.PublishOrderEvent(ctx, msg, "orders.status.updated"); err != nil {
		s.logger.Error("status_event_publish_failed", "Dropping status event", requestID, err,
			map[string]interface{}{"order_id": o.ID})
	}
	if err := s.publisher.PublishNotification(ctx, msg); err != nil {
		s.logger.Error("status_notification_failed", "Dropping status notification", requestID, err,
			map[string]interface{}{"order_id": o.ID})
	}
}
