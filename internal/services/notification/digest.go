package notification

import (
	"context"
	"time"

	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

// DigestRoutingKey routes coalesced courier digests on the orders
// topic; the courier digest queue binds "courier.*".
const DigestRoutingKey = "courier.digest"

type digestPublisher interface {
	PublishOrderEvent(ctx context.Context, msg interface{}, routingKey string) error
}

type digestKey struct {
	companyID string
	courierID string
}

type assignEvent struct {
	key        digestKey
	assignment models.CourierAssignment
}

// DigestScheduler coalesces courier assignments per company and agent:
// the first assignment opens a debounce window, later ones for the same
// agent join the batch, and one digest message flushes when the window
// closes. The window is never extended by new assignments, so a busy
// shift still drains on time.
type DigestScheduler struct {
	publisher digestPublisher
	debounce  time.Duration
	logger    *logger.Logger
	now       func() time.Time

	events chan assignEvent
}

// NewDigestScheduler creates a scheduler; call Run to start it.
func NewDigestScheduler(publisher digestPublisher, debounce time.Duration, log *logger.Logger) *DigestScheduler {
	return &DigestScheduler{
		publisher: publisher,
		debounce:  debounce,
		logger:    log,
		now:       time.Now,
		events:    make(chan assignEvent, 64),
	}
}

// Assign queues one assignment for digestion. Safe for concurrent use;
// drops the event with a log entry if the scheduler is saturated.
func (d *DigestScheduler) Assign(companyID, courierID string, assignment models.CourierAssignment) {
	ev := assignEvent{
		key:        digestKey{companyID: companyID, courierID: courierID},
		assignment: assignment,
	}
	select {
	case d.events <- ev:
	default:
		d.logger.Error("digest_overflow", "Dropping courier assignment, scheduler saturated", "", nil,
			map[string]interface{}{"courier_id": courierID, "order_id": assignment.OrderID})
	}
}

// Run owns all batch state in one goroutine until ctx is cancelled;
// pending batches flush on shutdown so assignments are never lost.
func (d *DigestScheduler) Run(ctx context.Context) {
	pending := make(map[digestKey][]models.CourierAssignment)
	deadlines := make(map[digestKey]time.Time)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	rearm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		next := d.nextDeadline(deadlines)
		if next.IsZero() {
			timer.Reset(time.Hour)
			return
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}

	for {
		select {
		case <-ctx.Done():
			for key := range pending {
				d.flush(key, pending, deadlines)
			}
			return

		case ev := <-d.events:
			if _, open := pending[ev.key]; !open {
				deadlines[ev.key] = d.now().Add(d.debounce)
			}
			pending[ev.key] = append(pending[ev.key], ev.assignment)
			rearm()

		case <-timer.C:
			now := d.now()
			for key, deadline := range deadlines {
				if !deadline.After(now) {
					d.flush(key, pending, deadlines)
				}
			}
			rearm()
		}
	}
}

func (d *DigestScheduler) nextDeadline(deadlines map[digestKey]time.Time) time.Time {
	var next time.Time
	for _, deadline := range deadlines {
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	return next
}

func (d *DigestScheduler) flush(key digestKey, pending map[digestKey][]models.CourierAssignment, deadlines map[digestKey]time.Time) {
	assignments := pending[key]
	delete(pending, key)
	delete(deadlines, key)
	if len(assignments) == 0 {
		return
	}

	msg := &models.CourierDigestMessage{
		CompanyID:   key.companyID,
		CourierID:   key.courierID,
		Assignments: assignments,
		Timestamp:   d.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.publisher.PublishOrderEvent(ctx, msg, DigestRoutingKey); err != nil {
		d.logger.Error("digest_publish_failed", "Dropping courier digest", "", err,
			map[string]interface{}{
				"courier_id":  key.courierID,
				"assignments": len(assignments),
			})
		return
	}

	d.logger.Info("digest_published", "Courier digest flushed", "",
		map[string]interface{}{
			"courier_id":  key.courierID,
			"assignments": len(assignments),
		})
}
