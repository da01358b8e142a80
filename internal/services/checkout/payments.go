package checkout

import (
	"math"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/models"
)

// amountTolerance is how far the allocation sum may drift from the grand
// total before reconciliation adjusts it.
const amountTolerance = 0.01

// ReconcileSplit validates a multi-instrument payment split against the
// grand total. When the explicit amounts do not add up, the whole
// discrepancy lands on the first instrument; it is never redistributed.
// An adjustment that would drive the first instrument negative fails with
// InvalidPaymentSplit. An empty split yields a single allocation for the
// given payment method covering the full total.
func ReconcileSplit(payments []models.PaymentSplitRequest, paymentMethod string, total float64) ([]models.PaymentInstrumentAllocation, error) {
	if len(payments) == 0 {
		return []models.PaymentInstrumentAllocation{{
			InstrumentID: paymentMethod,
			Amount:       total,
			Confirmation: models.PaymentPending,
		}}, nil
	}

	allocations := make([]models.PaymentInstrumentAllocation, len(payments))
	var sum float64
	for i, p := range payments {
		allocations[i] = models.PaymentInstrumentAllocation{
			InstrumentID: p.InstrumentID,
			Amount:       p.Amount,
			Confirmation: models.PaymentPending,
		}
		sum += p.Amount
	}

	discrepancy := total - sum
	if math.Abs(discrepancy) <= amountTolerance {
		return allocations, nil
	}

	adjusted := allocations[0].Amount + discrepancy
	if adjusted < 0 {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPaymentSplit,
			"adjusting first instrument by %.2f would make it negative", discrepancy)
	}
	allocations[0].Amount = adjusted

	return allocations, nil
}
