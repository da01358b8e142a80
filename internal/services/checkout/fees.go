package checkout

import (
	"sort"
	"time"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/models"
)

// FeeResult is the outcome of fee computation for one order.
type FeeResult struct {
	DeliveryFee float64
	ServiceFee  float64
	DistanceKm  *float64
	EtaMinutes  *int
}

// ComputeFees derives delivery and service fees. Dine-in and counter
// orders never carry fees. Delivery orders take the smallest band that
// still covers the computed distance; a distance beyond every band fails
// with OutOfDeliveryRange.
func ComputeFees(deliveryType models.DeliveryType, center *models.FulfillmentCenter, distanceKm *float64) (FeeResult, error) {
	if deliveryType != models.Delivery {
		return FeeResult{}, nil
	}
	if distanceKm == nil {
		return FeeResult{}, apperr.New(apperr.Internal, apperr.CodeProviderFailure,
			"delivery order reached fee computation without a distance")
	}

	bands := make([]models.DeliveryFeeBand, len(center.FeeBands))
	copy(bands, center.FeeBands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxDistanceKm < bands[j].MaxDistanceKm })

	for _, band := range bands {
		if band.MaxDistanceKm >= *distanceKm {
			eta := band.EtaMinutes
			return FeeResult{
				DeliveryFee: band.FeeAmount,
				ServiceFee:  center.ServiceFee,
				DistanceKm:  distanceKm,
				EtaMinutes:  &eta,
			}, nil
		}
	}

	return FeeResult{}, apperr.New(apperr.Range, apperr.CodeOutOfDeliveryRange,
		"distance %.2fkm exceeds every configured band for center %s", *distanceKm, center.ID)
}

// ApplyCoupon returns the discount a coupon yields on the subtotal. An
// invalid, expired, or inactive coupon degrades to a zero discount rather
// than aborting checkout.
func ApplyCoupon(coupon *models.Coupon, subtotal float64, now time.Time) float64 {
	if coupon == nil || !coupon.Valid(now) {
		return 0
	}

	switch coupon.Kind {
	case models.CouponFixed:
		if coupon.Value > subtotal {
			return subtotal
		}
		return coupon.Value
	case models.CouponPercentage:
		discount := subtotal * coupon.Value / 100
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
		if discount > subtotal {
			discount = subtotal
		}
		return discount
	default:
		return 0
	}
}
