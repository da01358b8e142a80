package notification

import (
	"context"
	"time"

	"restaurant-checkout/internal/logger"
)

const (
	sendAttempts = 2
	retryDelay   = 500 * time.Millisecond
)

// Dispatcher pushes messages through the gateway with a bounded retry.
// Delivery failures are logged and dropped; notifications never fail
// the operation that triggered them.
type Dispatcher struct {
	gateway Gateway
	logger  *logger.Logger
}

// NewDispatcher creates a dispatcher over the gateway.
func NewDispatcher(gateway Gateway, log *logger.Logger) *Dispatcher {
	return &Dispatcher{gateway: gateway, logger: log}
}

// Dispatch attempts delivery, retrying once before giving up.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient, text, companyID, requestID string) {
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if lastErr = d.gateway.SendMessage(ctx, recipient, text, companyID); lastErr == nil {
			d.logger.Debug("notification_sent", "Notification delivered", requestID,
				map[string]interface{}{"recipient": recipient, "attempt": attempt})
			return
		}
		if attempt < sendAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}

	d.logger.Error("notification_dropped", "Giving up on notification delivery", requestID, lastErr,
		map[string]interface{}{"recipient": recipient, "company_id": companyID})
}
