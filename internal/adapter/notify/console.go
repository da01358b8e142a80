// Package notify holds notification gateway implementations.
package notify

import (
	"context"
	"fmt"

	"restaurant-checkout/internal/logger"
)

// ConsoleGateway prints notifications to stdout. Useful in development
// and as the fallback channel when no push provider is configured.
type ConsoleGateway struct {
	logger *logger.Logger
}

// NewConsoleGateway creates the console gateway.
func NewConsoleGateway(log *logger.Logger) *ConsoleGateway {
	return &ConsoleGateway{logger: log}
}

// SendMessage prints the notification.
func (g *ConsoleGateway) SendMessage(ctx context.Context, recipient, text, companyID string) error {
	fmt.Println(text)
	g.logger.Debug("console_notification", "Notification printed", "",
		map[string]interface{}{"recipient": recipient, "company_id": companyID})
	return nil
}
