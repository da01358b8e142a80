package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/messaging"
	"restaurant-checkout/internal/models"
)

// Subscriber consumes status updates from the notifications fanout and
// pushes customer-facing messages through the dispatcher.
type Subscriber struct {
	consumer   *messaging.Consumer
	dispatcher *Dispatcher
	logger     *logger.Logger

	shutdown chan os.Signal
	done     chan bool
}

// NewSubscriber creates a notification subscriber.
func NewSubscriber(consumer *messaging.Consumer, dispatcher *Dispatcher, log *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     log,
		shutdown:   make(chan os.Signal, 1),
		done:       make(chan bool, 1),
	}
}

// Start consumes until a shutdown signal arrives or the consumer stops.
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	signal.Notify(s.shutdown, syscall.SIGINT, syscall.SIGTERM)

	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	go func() {
		if err := s.consumer.StartConsuming(ctx, s.handleStatusUpdate); err != nil {
			s.logger.Error("consumer_failed", "Notification consumer failed", requestID, err, nil)
		}
		s.done <- true
	}()

	select {
	case <-s.shutdown:
		s.logger.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		return s.consumer.Close()
	case <-s.done:
		return nil
	}
}

func (s *Subscriber) handleStatusUpdate(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var update models.StatusUpdateMessage
	if err := json.Unmarshal(body, &update); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse status update", requestID, err, nil)
		return fmt.Errorf("failed to parse status update: %w", err)
	}

	s.logger.Debug("notification_received", "Status update received", requestID,
		map[string]interface{}{
			"order_id":   update.OrderID,
			"new_status": update.NewStatus,
			"changed_by": update.ChangedBy,
		})

	recipient := fmt.Sprintf("order-%d", update.OrderID)
	s.dispatcher.Dispatch(ctx, recipient, FormatStatusText(&update), update.CompanyID, requestID)
	return nil
}

// FormatStatusText renders a human-readable line for one transition.
func FormatStatusText(update *models.StatusUpdateMessage) string {
	timestamp := update.Timestamp.Format("2006-01-02 15:04:05")

	switch models.OrderStatus(update.NewStatus) {
	case models.StatusPreparing:
		return fmt.Sprintf("[%s] Order %d is being prepared.", timestamp, update.OrderID)
	case models.StatusOutForDelivery:
		return fmt.Sprintf("[%s] Order %d is out for delivery.", timestamp, update.OrderID)
	case models.StatusDelivered:
		return fmt.Sprintf("[%s] Order %d has been delivered. Thank you!", timestamp, update.OrderID)
	case models.StatusCancelled:
		return fmt.Sprintf("[%s] Order %d has been cancelled.", timestamp, update.OrderID)
	case models.StatusAwaitingPayment:
		return fmt.Sprintf("[%s] Order %d is awaiting payment confirmation.", timestamp, update.OrderID)
	default:
		return fmt.Sprintf("[%s] Order %d moved from %s to %s.",
			timestamp, update.OrderID, update.OldStatus, update.NewStatus)
	}
}
