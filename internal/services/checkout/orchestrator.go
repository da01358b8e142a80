package checkout

import (
	"context"
	"sort"
	"time"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/geo"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

// OrderStore persists a checkout commit as one atomic unit; satisfied by
// Repository.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
}

// Orchestrator composes selection, pricing, fees, and payment
// reconciliation into the preview and commit paths.
type Orchestrator struct {
	directory CompanyDirectory
	coupons   CouponStore
	resolver  *geo.Resolver
	selector  *CenterSelector
	pricer    *LineItemPricer
	store     OrderStore
	publisher EventPublisher
	previews  *PreviewCache
	logger    *logger.Logger
	now       func() time.Time
}

// NewOrchestrator wires the checkout pipeline.
func NewOrchestrator(
	directory CompanyDirectory,
	coupons CouponStore,
	resolver *geo.Resolver,
	selector *CenterSelector,
	pricer *LineItemPricer,
	store OrderStore,
	publisher EventPublisher,
	previews *PreviewCache,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		directory: directory,
		coupons:   coupons,
		resolver:  resolver,
		selector:  selector,
		pricer:    pricer,
		store:     store,
		publisher: publisher,
		previews:  previews,
		logger:    log,
		now:       time.Now,
	}
}

// quote is the priced outcome of the checkout pipeline before it becomes
// either a preview or a committed order.
type quote struct {
	center      *models.FulfillmentCenter
	address     *models.AddressSnapshot
	lineItems   []models.OrderLineItem
	subtotal    float64
	discount    float64
	fees        FeeResult
	totalAmount float64
}

// Preview runs the pipeline without persisting anything. Results are
// memoized for the cache TTL, so identical payloads return identical
// totals.
func (o *Orchestrator) Preview(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*models.PreviewView, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err)
	}

	key := o.previews.Key(req)
	if cached := o.previews.Get(ctx, key); cached != nil {
		o.logger.Debug("preview_cache_hit", "Serving memoized preview", requestID,
			map[string]interface{}{"company_id": req.CompanyID})
		return cached, nil
	}

	q, err := o.buildQuote(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	view := &models.PreviewView{
		CompanyID:   req.CompanyID,
		CenterID:    q.center.ID,
		Subtotal:    q.subtotal,
		Discount:    q.discount,
		DeliveryFee: q.fees.DeliveryFee,
		ServiceFee:  q.fees.ServiceFee,
		TotalAmount: q.totalAmount,
		DistanceKm:  q.fees.DistanceKm,
		EtaMinutes:  q.fees.EtaMinutes,
	}
	for _, li := range q.lineItems {
		view.Items = append(view.Items, models.LineItemView{
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

	o.previews.Put(ctx, key, view)
	return view, nil
}

// Commit runs the pipeline and persists order, line items, and payment
// allocations atomically, then schedules the order-created notification
// off the request path.
func (o *Orchestrator) Commit(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*models.OrderView, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err)
	}

	q, err := o.buildQuote(ctx, req, requestID)
	if err != nil {
		return nil, err
	}

	allocations, err := ReconcileSplit(req.Payments, req.PaymentMethod, q.totalAmount)
	if err != nil {
		return nil, err
	}

	status := models.StatusPending
	if models.PaymentMethodRequiresConfirmation[req.PaymentMethod] {
		status = models.StatusAwaitingPayment
	}

	var eta *time.Time
	if q.fees.EtaMinutes != nil {
		t := o.now().UTC().Add(time.Duration(*q.fees.EtaMinutes) * time.Minute)
		eta = &t
	}

	order := &models.Order{
		CompanyID:          req.CompanyID,
		Channel:            req.Channel,
		DeliveryType:       models.DeliveryType(req.DeliveryType),
		Status:             status,
		Subtotal:           q.subtotal,
		Discount:           q.discount,
		DeliveryFee:        q.fees.DeliveryFee,
		ServiceFee:         q.fees.ServiceFee,
		TotalAmount:        q.totalAmount,
		AddressSnapshot:    q.address,
		DistanceKm:         q.fees.DistanceKm,
		ETA:                eta,
		SeatingResourceRef: req.SeatingResourceRef,
		LineItems:          q.lineItems,
		Payments:           allocations,
	}

	if err := o.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	o.logger.Info("order_created", "Checkout committed", requestID, map[string]interface{}{
		"order_id":     order.ID,
		"company_id":   order.CompanyID,
		"total_amount": order.TotalAmount,
	})

	// Notification dispatch is isolated from the commit: a failure here is
	// logged and swallowed, never rolled back into the transaction.
	go o.announceOrder(order, requestID)

	return models.ViewFromOrder(order), nil
}

func (o *Orchestrator) announceOrder(order *models.Order, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := models.NewOrderCreatedMessage(order)
	routingKey := "orders." + order.Channel + ".created"
	if err := o.publisher.PublishOrderEvent(ctx, msg, routingKey); err != nil {
		o.logger.Error("order_notification_failed", "Dropping order-created notification", requestID, err,
			map[string]interface{}{"order_id": order.ID})
		return
	}
	if err := o.publisher.PublishNotification(ctx, msg); err != nil {
		o.logger.Error("order_notification_failed", "Dropping customer notification", requestID, err,
			map[string]interface{}{"order_id": order.ID})
	}
}

func (o *Orchestrator) buildQuote(ctx context.Context, req *models.CreateOrderRequest, requestID string) (*quote, error) {
	deliveryType := models.DeliveryType(req.DeliveryType)

	var (
		center  *models.FulfillmentCenter
		address *models.AddressSnapshot
		distKm  *float64
	)

	if deliveryType == models.Delivery {
		coords, err := o.resolver.Resolve(ctx, *req.AddressText)
		if err != nil {
			return nil, err
		}
		address = &models.AddressSnapshot{Text: *req.AddressText, Coordinates: coords}

		variants, err := cartVariants(req.Items)
		if err != nil {
			return nil, err
		}
		selected, distance, err := o.selector.Select(ctx, req.CompanyID, coords, variants, req.PinnedCenterID, requestID)
		if err != nil {
			return nil, err
		}
		center = selected
		distKm = &distance
	} else {
		selected, err := o.centerForCompany(ctx, req.CompanyID, req.PinnedCenterID)
		if err != nil {
			return nil, err
		}
		center = selected
	}

	lineItems := make([]models.OrderLineItem, 0, len(req.Items))
	var subtotal float64
	for _, item := range req.Items {
		priced, err := o.pricer.Price(ctx, center.ID, item, requestID)
		if err != nil {
			return nil, err
		}
		lineItems = append(lineItems, *priced)
		subtotal += priced.LineTotal()
	}

	discount := o.resolveDiscount(ctx, req, subtotal, requestID)

	fees, err := ComputeFees(deliveryType, center, distKm)
	if err != nil {
		return nil, err
	}

	return &quote{
		center:      center,
		address:     address,
		lineItems:   lineItems,
		subtotal:    subtotal,
		discount:    discount,
		fees:        fees,
		totalAmount: subtotal - discount + fees.DeliveryFee + fees.ServiceFee,
	}, nil
}

// resolveDiscount degrades every coupon problem to a zero discount; a bad
// coupon never aborts checkout.
func (o *Orchestrator) resolveDiscount(ctx context.Context, req *models.CreateOrderRequest, subtotal float64, requestID string) float64 {
	if req.CouponCode == nil || *req.CouponCode == "" {
		return 0
	}

	coupon, err := o.coupons.GetByCode(ctx, req.CompanyID, *req.CouponCode)
	if err != nil {
		o.logger.Warn("coupon_lookup_failed", "Ignoring coupon after store failure", requestID,
			map[string]interface{}{"coupon_code": *req.CouponCode, "error": err.Error()})
		return 0
	}

	discount := ApplyCoupon(coupon, subtotal, o.now())
	if discount == 0 {
		o.logger.Warn("coupon_ignored", "Coupon yielded no discount", requestID,
			map[string]interface{}{"coupon_code": *req.CouponCode})
	}
	return discount
}

// centerForCompany resolves the center serving a dine-in or counter
// order: the pinned one when given, otherwise the company's
// lowest-id center.
func (o *Orchestrator) centerForCompany(ctx context.Context, companyID string, pinnedCenterID *string) (*models.FulfillmentCenter, error) {
	if pinnedCenterID != nil {
		center, err := o.directory.GetByID(ctx, *pinnedCenterID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err, "fetching pinned center")
		}
		if center == nil {
			return nil, apperr.New(apperr.NotFound, apperr.CodeCompanyNotFound,
				"center %s not found", *pinnedCenterID)
		}
		if center.CompanyID != companyID {
			return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload,
				"center %s does not belong to company %s", *pinnedCenterID, companyID)
		}
		return center, nil
	}

	centers, err := o.directory.List(ctx, companyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err, "listing fulfillment centers")
	}
	if len(centers) == 0 {
		return nil, apperr.New(apperr.NotFound, apperr.CodeCompanyNotFound,
			"company %s has no fulfillment centers", companyID)
	}
	sort.Slice(centers, func(i, j int) bool { return centers[i].ID < centers[j].ID })
	return &centers[0], nil
}

func cartVariants(items []models.CartItemRequest) ([]models.ItemVariant, error) {
	variants := make([]models.ItemVariant, 0, len(items))
	for _, item := range items {
		v, err := models.NewItemVariant(models.ItemKind(item.Kind), item.Ref)
		if err != nil {
			return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err)
		}
		variants = append(variants, v)
	}
	return variants, nil
}
