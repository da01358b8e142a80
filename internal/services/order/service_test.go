package order

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
	"restaurant-checkout/internal/services/checkout"
)

var testLog = logger.New("order-test")

type recordedTransition struct {
	orderID   int64
	from      models.OrderStatus
	to        models.OrderStatus
	changedBy string
	notes     *string
}

type fakeStore struct {
	mu          sync.Mutex
	orders      map[int64]*models.Order
	transitions []recordedTransition
	released    []string
	openCount   int
	lastEdit    *models.OrderLineItem
	courier     *string
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	s := &fakeStore{orders: make(map[int64]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	clone := *o
	return &clone, nil
}

func (s *fakeStore) RecordTransition(_ context.Context, orderID int64, from, to models.OrderStatus, changedBy string, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, recordedTransition{orderID, from, to, changedBy, notes})
	if o, ok := s.orders[orderID]; ok {
		o.Status = to
	}
	return nil
}

func (s *fakeStore) RegisterPaymentAndTransition(_ context.Context, orderID int64, payment *models.PaymentInstrumentAllocation, from, to models.OrderStatus, changedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, recordedTransition{orderID, from, to, changedBy, nil})
	o, ok := s.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	o.Status = to
	if payment != nil {
		var settled []models.PaymentInstrumentAllocation
		for _, p := range o.Payments {
			if p.Confirmation != models.PaymentPending {
				settled = append(settled, p)
			}
		}
		o.Payments = append(settled, *payment)
	}
	return nil
}

func (s *fakeStore) ApplyItemEdit(_ context.Context, orderID int64, action models.EditItemAction, lineItemID int64, item *models.OrderLineItem) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEdit = item
	o := s.orders[orderID]
	switch action {
	case models.EditAdd:
		item.ID = int64(len(o.LineItems) + 1)
		o.LineItems = append(o.LineItems, *item)
	case models.EditUpdate:
		for i := range o.LineItems {
			if o.LineItems[i].ID == lineItemID {
				item.ID = lineItemID
				o.LineItems[i] = *item
			}
		}
	case models.EditRemove:
		var kept []models.OrderLineItem
		for _, li := range o.LineItems {
			if li.ID != lineItemID {
				kept = append(kept, li)
			}
		}
		o.LineItems = kept
	}
	o.RecomputeTotals()
	clone := *o
	return &clone, nil
}

func (s *fakeStore) CountOpenSiblings(_ context.Context, _, _ string) (int, error) {
	return s.openCount, nil
}

func (s *fakeStore) ReleaseSeating(_ context.Context, _, seatingRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, seatingRef)
	return nil
}

func (s *fakeStore) AssignCourier(_ context.Context, orderID int64, courierID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courier = courierID
	if o, ok := s.orders[orderID]; ok {
		o.CourierID = courierID
	}
	return nil
}

type fakePublisher struct {
	events chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan string, 8)}
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, _ interface{}, routingKey string) error {
	p.events <- routingKey
	return nil
}

func (p *fakePublisher) PublishNotification(_ context.Context, _ interface{}) error {
	return nil
}

type fakeGateway struct {
	status  string
	err     error
	charged []float64
}

func (g *fakeGateway) Charge(_ context.Context, _ int64, amount float64, _ string) (*checkout.ChargeResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.charged = append(g.charged, amount)
	return &checkout.ChargeResult{Status: g.status, ProviderTxID: "tx-1"}, nil
}

type fakeCatalog struct {
	price float64
}

func (c *fakeCatalog) Resolve(_ context.Context, _ models.ItemVariant, _ string) (*models.CatalogItem, error) {
	return &models.CatalogItem{
		UnitPrice:   c.price,
		IsActive:    true,
		IsAvailable: true,
		Description: "Margherita",
	}, nil
}

type fakeComplements struct{}

func (fakeComplements) ListGroupsFor(_ context.Context, _ models.ItemVariant, _ string) ([]models.ComplementGroup, error) {
	return nil, nil
}

type fakeDirectory struct {
	centers []models.FulfillmentCenter
}

func (d *fakeDirectory) List(_ context.Context, _ string) ([]models.FulfillmentCenter, error) {
	return d.centers, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, centerID string) (*models.FulfillmentCenter, error) {
	for _, c := range d.centers {
		if c.ID == centerID {
			center := c
			return &center, nil
		}
	}
	return nil, nil
}

type fakeDigest struct {
	mu       sync.Mutex
	assigned []models.CourierAssignment
}

func (d *fakeDigest) Assign(_, _ string, a models.CourierAssignment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assigned = append(d.assigned, a)
}

type serviceFixture struct {
	store     *fakeStore
	publisher *fakePublisher
	gateway   *fakeGateway
	digest    *fakeDigest
	service   *Service
}

func newServiceFixture(t *testing.T, orders ...*models.Order) *serviceFixture {
	t.Helper()
	store := newFakeStore(orders...)
	publisher := newFakePublisher()
	gateway := &fakeGateway{status: checkout.ChargeConfirmed}
	digest := &fakeDigest{}
	pricer := checkout.NewLineItemPricer(&fakeCatalog{price: 10.00}, fakeComplements{}, testLog)
	directory := &fakeDirectory{centers: []models.FulfillmentCenter{{ID: "c-1"}}}

	return &serviceFixture{
		store:     store,
		publisher: publisher,
		gateway:   gateway,
		digest:    digest,
		service:   NewService(store, pricer, directory, gateway, publisher, digest, testLog),
	}
}

func awaitEvent(t *testing.T, events chan string) string {
	t.Helper()
	select {
	case key := <-events:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
		return ""
	}
}

func dineInOrder(id int64) *models.Order {
	ref := "table-9"
	return &models.Order{
		ID:                 id,
		CompanyID:          "acme",
		Channel:            "pos",
		DeliveryType:       models.DineIn,
		Status:             models.StatusPending,
		Subtotal:           20.00,
		TotalAmount:        20.00,
		SeatingResourceRef: &ref,
		LineItems: []models.OrderLineItem{
			{ID: 1, Quantity: 2, UnitPrice: 10.00, Description: "Margherita"},
		},
		Payments: []models.PaymentInstrumentAllocation{
			{ID: 1, InstrumentID: "CASH", Amount: 20.00, Confirmation: models.PaymentPending},
		},
	}
}

func deliveryOrder(id int64) *models.Order {
	return &models.Order{
		ID:           id,
		CompanyID:    "acme",
		Channel:      "app",
		DeliveryType: models.Delivery,
		Status:       models.StatusOutForDelivery,
		Subtotal:     30.00,
		TotalAmount:  30.00,
		AddressSnapshot: &models.AddressSnapshot{
			Text: "10 Rua das Flores",
		},
		Payments: []models.PaymentInstrumentAllocation{
			{ID: 1, InstrumentID: "CASH", Amount: 30.00, Confirmation: models.PaymentPending},
		},
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.GetOrder(context.Background(), 404)
	if apperr.CodeOf(err) != apperr.CodeOrderNotFound {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodeOrderNotFound)
	}
}

func TestUpdateStatus_RecordsAuditAndPublishes(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	view, err := f.service.UpdateStatus(context.Background(), 1,
		&models.UpdateStatusRequest{NewStatus: "PRINTING", ChangedBy: "kitchen"}, "req-1")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if view.Status != "PRINTING" {
		t.Errorf("status = %s, want PRINTING", view.Status)
	}

	if len(f.store.transitions) != 1 {
		t.Fatalf("transitions = %d, want 1", len(f.store.transitions))
	}
	tr := f.store.transitions[0]
	if tr.from != models.StatusPending || tr.to != models.StatusPrinting || tr.changedBy != "kitchen" {
		t.Errorf("unexpected audit entry: %+v", tr)
	}
	if tr.notes != nil {
		t.Errorf("normal transition should carry no notes, got %q", *tr.notes)
	}

	if key := awaitEvent(t, f.publisher.events); key != "orders.status.updated" {
		t.Errorf("routing key = %s, want orders.status.updated", key)
	}
}

func TestUpdateStatus_InvalidEdgeRejected(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	_, err := f.service.UpdateStatus(context.Background(), 1,
		&models.UpdateStatusRequest{NewStatus: "OUT_FOR_DELIVERY", ChangedBy: "kitchen"}, "req-1")
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if len(f.store.transitions) != 0 {
		t.Error("rejected transition must not reach the store")
	}
}

func TestUpdateStatus_ReleasesSeatingWhenLastOrderCloses(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))
	f.store.openCount = 0

	_, err := f.service.UpdateStatus(context.Background(), 1,
		&models.UpdateStatusRequest{NewStatus: "CANCELLED", ChangedBy: "waiter"}, "req-1")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(f.store.released) != 1 || f.store.released[0] != "table-9" {
		t.Errorf("released = %v, want [table-9]", f.store.released)
	}
}

func TestUpdateStatus_KeepsSeatingWhileSiblingsOpen(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))
	f.store.openCount = 2

	_, err := f.service.UpdateStatus(context.Background(), 1,
		&models.UpdateStatusRequest{NewStatus: "CANCELLED", ChangedBy: "waiter"}, "req-1")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if len(f.store.released) != 0 {
		t.Errorf("seating released with %v while siblings still open", f.store.released)
	}
}

func TestUpdateStatus_AdminReopenIsAudited(t *testing.T) {
	o := dineInOrder(1)
	o.Status = models.StatusCancelled
	f := newServiceFixture(t, o)

	_, err := f.service.UpdateStatus(context.Background(), 1,
		&models.UpdateStatusRequest{NewStatus: "PRINTING", ChangedBy: "manager"}, "req-1")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	tr := f.store.transitions[0]
	if tr.notes == nil {
		t.Fatal("admin re-open must carry an audit note")
	}
}

func TestCloseAccount_SettlesUnpaidDeliveryOrder(t *testing.T) {
	f := newServiceFixture(t, deliveryOrder(5))

	// The direct transition is blocked while payment is unconfirmed.
	_, err := f.service.UpdateStatus(context.Background(), 5,
		&models.UpdateStatusRequest{NewStatus: "DELIVERED", ChangedBy: "courier"}, "req-1")
	if apperr.CodeOf(err) != apperr.CodePaymentNotConfirmed {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodePaymentNotConfirmed)
	}

	view, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", InstrumentID: "CASH", Amount: 30.00},
			ChangedBy: "courier",
		}, "req-2")
	if err != nil {
		t.Fatalf("CloseAccount failed: %v", err)
	}
	if view.Status != "DELIVERED" {
		t.Errorf("status = %s, want DELIVERED", view.Status)
	}
	for _, p := range view.Payments {
		if p.Confirmation != "CONFIRMED" {
			t.Errorf("payment %s left %s after close", p.InstrumentID, p.Confirmation)
		}
	}
	if len(f.gateway.charged) != 1 || f.gateway.charged[0] != 30.00 {
		t.Errorf("charged = %v, want [30]", f.gateway.charged)
	}
	awaitEvent(t, f.publisher.events)
}

func TestCloseAccount_AllocationSumMatchesTotal(t *testing.T) {
	// The close payment replaces the pending split instead of piling a
	// second allocation on top of it.
	f := newServiceFixture(t, deliveryOrder(5))

	view, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", InstrumentID: "CASH", Amount: 30.00},
			ChangedBy: "courier",
		}, "req-1")
	if err != nil {
		t.Fatalf("CloseAccount failed: %v", err)
	}

	var sum float64
	for _, p := range view.Payments {
		if p.Confirmation != "CONFIRMED" {
			t.Errorf("payment %s left %s after close", p.InstrumentID, p.Confirmation)
		}
		sum += p.Amount
	}
	if math.Abs(sum-view.TotalAmount) > 0.01 {
		t.Errorf("allocation sum = %.2f, total = %.2f; settled orders must balance", sum, view.TotalAmount)
	}
	if len(view.Payments) != 1 {
		t.Errorf("payments = %d, want the close payment to replace the pending split", len(view.Payments))
	}
}

func TestCloseAccount_PartialConfirmedSplitBalances(t *testing.T) {
	o := deliveryOrder(5)
	o.Payments = []models.PaymentInstrumentAllocation{
		{ID: 1, InstrumentID: "VOUCHER", Amount: 10.00, Confirmation: models.PaymentConfirmed},
		{ID: 2, InstrumentID: "CASH", Amount: 20.00, Confirmation: models.PaymentPending},
	}
	f := newServiceFixture(t, o)

	view, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", InstrumentID: "CASH", Amount: 20.00},
			ChangedBy: "courier",
		}, "req-1")
	if err != nil {
		t.Fatalf("CloseAccount failed: %v", err)
	}

	var sum float64
	for _, p := range view.Payments {
		sum += p.Amount
	}
	if math.Abs(sum-30.00) > 0.01 {
		t.Errorf("allocation sum = %.2f, want 30.00", sum)
	}
}

func TestCloseAccount_UnderpaymentRejected(t *testing.T) {
	f := newServiceFixture(t, deliveryOrder(5))

	_, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", Amount: 20.00},
			ChangedBy: "courier",
		}, "req-1")
	if apperr.CodeOf(err) != apperr.CodeInvalidPaymentSplit {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodeInvalidPaymentSplit)
	}
	if len(f.gateway.charged) != 0 {
		t.Error("an underpayment must be rejected before the gateway is charged")
	}
	if f.store.orders[5].Status != models.StatusOutForDelivery {
		t.Error("a rejected close must leave the order untouched")
	}
}

func TestCloseAccount_OverpaymentAllocatesOutstanding(t *testing.T) {
	// A 50.00 note on a 30.00 order: change is handed back, the
	// allocation records only the outstanding amount.
	f := newServiceFixture(t, deliveryOrder(5))

	view, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", Amount: 50.00},
			ChangedBy: "courier",
		}, "req-1")
	if err != nil {
		t.Fatalf("CloseAccount failed: %v", err)
	}
	var sum float64
	for _, p := range view.Payments {
		sum += p.Amount
	}
	if math.Abs(sum-30.00) > 0.01 {
		t.Errorf("allocation sum = %.2f, want 30.00", sum)
	}
}

func TestCloseAccount_DeclinedCharge(t *testing.T) {
	f := newServiceFixture(t, deliveryOrder(5))
	f.gateway.status = checkout.ChargeDeclined

	_, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{
			Payment:   &models.ClosePaymentInfo{Method: "CASH", Amount: 30.00},
			ChangedBy: "courier",
		}, "req-1")
	if apperr.CodeOf(err) != apperr.CodePaymentNotConfirmed {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodePaymentNotConfirmed)
	}
	if f.store.orders[5].Status != models.StatusOutForDelivery {
		t.Error("declined charge must leave the order untouched")
	}
}

func TestCloseAccount_NoPaymentRequiresConfirmedSplit(t *testing.T) {
	f := newServiceFixture(t, deliveryOrder(5))

	_, err := f.service.CloseAccount(context.Background(), 5,
		&models.CloseAccountRequest{ChangedBy: "courier"}, "req-1")
	if apperr.CodeOf(err) != apperr.CodePaymentNotConfirmed {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodePaymentNotConfirmed)
	}
}

func TestEditItem_AddRepricesFromCatalog(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	view, err := f.service.EditItem(context.Background(), 1,
		&models.EditItemRequest{
			Action: models.EditAdd,
			Item:   &models.CartItemRequest{Kind: "PRODUCT", Ref: "margherita", Quantity: 1},
		}, "req-1")
	if err != nil {
		t.Fatalf("EditItem failed: %v", err)
	}

	if f.store.lastEdit == nil || f.store.lastEdit.UnitPrice != 10.00 {
		t.Fatalf("stored line must carry the catalog price, got %+v", f.store.lastEdit)
	}
	if len(view.Items) != 2 {
		t.Errorf("items = %d, want 2", len(view.Items))
	}
	if view.Subtotal != 30.00 || view.TotalAmount != 30.00 {
		t.Errorf("totals = %.2f/%.2f, want 30.00/30.00", view.Subtotal, view.TotalAmount)
	}
}

func TestEditItem_RemoveRecomputesTotals(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	view, err := f.service.EditItem(context.Background(), 1,
		&models.EditItemRequest{Action: models.EditRemove, LineItemID: 1}, "req-1")
	if err != nil {
		t.Fatalf("EditItem failed: %v", err)
	}
	if len(view.Items) != 0 {
		t.Errorf("items = %d, want 0", len(view.Items))
	}
	if view.Subtotal != 0 {
		t.Errorf("subtotal = %.2f, want 0", view.Subtotal)
	}
}

func TestEditItem_ClosedOrderRejected(t *testing.T) {
	o := dineInOrder(1)
	o.Status = models.StatusDelivered
	f := newServiceFixture(t, o)

	_, err := f.service.EditItem(context.Background(), 1,
		&models.EditItemRequest{Action: models.EditRemove, LineItemID: 1}, "req-1")
	if apperr.CodeOf(err) != apperr.CodeOrderNotEditable {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodeOrderNotEditable)
	}
}

func TestEditItem_MissingLine(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	_, err := f.service.EditItem(context.Background(), 1,
		&models.EditItemRequest{Action: models.EditRemove, LineItemID: 99}, "req-1")
	if apperr.CodeOf(err) != apperr.CodeItemNotFound {
		t.Fatalf("code = %s, want %s", apperr.CodeOf(err), apperr.CodeItemNotFound)
	}
}

func TestAssignCourier_FeedsDigestScheduler(t *testing.T) {
	o := deliveryOrder(5)
	f := newServiceFixture(t, o)

	courier := "rider-7"
	view, err := f.service.AssignCourier(context.Background(), 5,
		&models.AssignCourierRequest{CourierID: &courier}, "req-1")
	if err != nil {
		t.Fatalf("AssignCourier failed: %v", err)
	}
	if view.CourierID == nil || *view.CourierID != "rider-7" {
		t.Errorf("courier = %v, want rider-7", view.CourierID)
	}
	if len(f.digest.assigned) != 1 {
		t.Fatalf("digest assignments = %d, want 1", len(f.digest.assigned))
	}
	a := f.digest.assigned[0]
	if a.OrderID != 5 || a.AddressText != "10 Rua das Flores" || a.TotalAmount != 30.00 {
		t.Errorf("unexpected assignment: %+v", a)
	}
}

func TestAssignCourier_ClearSkipsDigest(t *testing.T) {
	f := newServiceFixture(t, deliveryOrder(5))

	view, err := f.service.AssignCourier(context.Background(), 5,
		&models.AssignCourierRequest{CourierID: nil}, "req-1")
	if err != nil {
		t.Fatalf("AssignCourier failed: %v", err)
	}
	if view.CourierID != nil {
		t.Errorf("courier = %v, want nil", view.CourierID)
	}
	if len(f.digest.assigned) != 0 {
		t.Error("clearing a courier must not enqueue a digest entry")
	}
}

func TestAssignCourier_NonDeliveryRejected(t *testing.T) {
	f := newServiceFixture(t, dineInOrder(1))

	courier := "rider-7"
	_, err := f.service.AssignCourier(context.Background(), 1,
		&models.AssignCourierRequest{CourierID: &courier}, "req-1")
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}
