package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

var testLog = logger.New("notification-test")

type capturedDigest struct {
	msg        *models.CourierDigestMessage
	routingKey string
}

type fakeDigestPublisher struct {
	digests chan capturedDigest
}

func newFakeDigestPublisher() *fakeDigestPublisher {
	return &fakeDigestPublisher{digests: make(chan capturedDigest, 8)}
}

func (p *fakeDigestPublisher) PublishOrderEvent(_ context.Context, msg interface{}, routingKey string) error {
	digest, ok := msg.(*models.CourierDigestMessage)
	if !ok {
		return errors.New("unexpected message type")
	}
	p.digests <- capturedDigest{msg: digest, routingKey: routingKey}
	return nil
}

func awaitDigest(t *testing.T, publisher *fakeDigestPublisher) capturedDigest {
	t.Helper()
	select {
	case d := <-publisher.digests:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for digest")
		return capturedDigest{}
	}
}

func TestDigestScheduler_CoalescesAssignments(t *testing.T) {
	publisher := newFakeDigestPublisher()
	scheduler := NewDigestScheduler(publisher, 50*time.Millisecond, testLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	scheduler.Assign("acme", "rider-7", models.CourierAssignment{OrderID: 1, AddressText: "A", TotalAmount: 10})
	scheduler.Assign("acme", "rider-7", models.CourierAssignment{OrderID: 2, AddressText: "B", TotalAmount: 20})

	d := awaitDigest(t, publisher)
	if d.routingKey != DigestRoutingKey {
		t.Errorf("routing key = %s, want %s", d.routingKey, DigestRoutingKey)
	}
	if d.msg.CompanyID != "acme" || d.msg.CourierID != "rider-7" {
		t.Errorf("digest addressed to %s/%s", d.msg.CompanyID, d.msg.CourierID)
	}
	if len(d.msg.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2 coalesced into one digest", len(d.msg.Assignments))
	}
	if d.msg.Assignments[0].OrderID != 1 || d.msg.Assignments[1].OrderID != 2 {
		t.Errorf("assignment order lost: %+v", d.msg.Assignments)
	}

	select {
	case extra := <-publisher.digests:
		t.Errorf("unexpected second digest: %+v", extra.msg)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDigestScheduler_SeparatesCouriers(t *testing.T) {
	publisher := newFakeDigestPublisher()
	scheduler := NewDigestScheduler(publisher, 20*time.Millisecond, testLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	scheduler.Assign("acme", "rider-1", models.CourierAssignment{OrderID: 1})
	scheduler.Assign("acme", "rider-2", models.CourierAssignment{OrderID: 2})

	couriers := map[string]int{}
	for i := 0; i < 2; i++ {
		d := awaitDigest(t, publisher)
		couriers[d.msg.CourierID] = len(d.msg.Assignments)
	}
	if couriers["rider-1"] != 1 || couriers["rider-2"] != 1 {
		t.Errorf("digests per courier = %v, want one assignment each", couriers)
	}
}

func TestDigestScheduler_FlushesOnShutdown(t *testing.T) {
	publisher := newFakeDigestPublisher()
	scheduler := NewDigestScheduler(publisher, time.Hour, testLog)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	scheduler.Assign("acme", "rider-7", models.CourierAssignment{OrderID: 9})
	// Let the event reach the scheduler goroutine before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	d := awaitDigest(t, publisher)
	if len(d.msg.Assignments) != 1 || d.msg.Assignments[0].OrderID != 9 {
		t.Errorf("shutdown flush lost assignments: %+v", d.msg.Assignments)
	}
}

type flakyGateway struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
}

func (g *flakyGateway) SendMessage(_ context.Context, _, text, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failures {
		return errors.New("gateway unavailable")
	}
	g.sent = append(g.sent, text)
	return nil
}

func TestDispatcher_RetriesOnce(t *testing.T) {
	gateway := &flakyGateway{failures: 1}
	dispatcher := NewDispatcher(gateway, testLog)

	dispatcher.Dispatch(context.Background(), "order-1", "hello", "acme", "req-1")

	if gateway.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", gateway.calls)
	}
	if len(gateway.sent) != 1 {
		t.Errorf("sent = %v, want one delivered message", gateway.sent)
	}
}

func TestDispatcher_GivesUpAfterRetries(t *testing.T) {
	gateway := &flakyGateway{failures: 10}
	dispatcher := NewDispatcher(gateway, testLog)

	dispatcher.Dispatch(context.Background(), "order-1", "hello", "acme", "req-1")

	if gateway.calls != 2 {
		t.Errorf("calls = %d, want 2 attempts before dropping", gateway.calls)
	}
	if len(gateway.sent) != 0 {
		t.Errorf("sent = %v, want none", gateway.sent)
	}
}

func TestFormatStatusText(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		status string
		want   string
	}{
		{"PREPARING", "being prepared"},
		{"OUT_FOR_DELIVERY", "out for delivery"},
		{"DELIVERED", "has been delivered"},
		{"CANCELLED", "has been cancelled"},
		{"AWAITING_PAYMENT", "awaiting payment"},
		{"IN_EDIT", "moved from PENDING to IN_EDIT"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			msg := &models.StatusUpdateMessage{
				OrderID:   42,
				OldStatus: "PENDING",
				NewStatus: tt.status,
				Timestamp: ts,
			}
			got := FormatStatusText(msg)
			if !strings.Contains(got, tt.want) {
				t.Errorf("FormatStatusText(%s) = %q, missing %q", tt.status, got, tt.want)
			}
		})
	}
}
