package notification

import "context"

// Gateway delivers one customer-facing message over some channel
// (console, SMS, push). Implementations live in internal/adapter.
type Gateway interface {
	SendMessage(ctx context.Context, recipient, text, companyID string) error
}
