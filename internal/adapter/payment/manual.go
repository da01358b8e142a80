// Package payment holds payment gateway implementations.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/services/checkout"
)

// ManualGateway confirms charges taken outside the system: cash handed
// to staff or a standalone card terminal. The operator vouches for the
// money; the gateway just records a transaction id.
type ManualGateway struct {
	logger *logger.Logger
}

// NewManualGateway creates the manual gateway.
func NewManualGateway(log *logger.Logger) *ManualGateway {
	return &ManualGateway{logger: log}
}

// Charge records the externally captured payment.
func (g *ManualGateway) Charge(ctx context.Context, orderID int64, amount float64, method string) (*checkout.ChargeResult, error) {
	if amount <= 0 {
		return &checkout.ChargeResult{Status: checkout.ChargeDeclined}, nil
	}

	txID := fmt.Sprintf("manual-%s", uuid.New().String())
	g.logger.Info("manual_charge_recorded", "Manual payment recorded", "",
		map[string]interface{}{
			"order_id": orderID,
			"amount":   amount,
			"method":   method,
			"tx_id":    txID,
		})
	return &checkout.ChargeResult{Status: checkout.ChargeConfirmed, ProviderTxID: txID}, nil
}
