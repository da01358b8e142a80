package checkout

import (
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

// ResolveComplements prices the requested complement selections for one
// line item against the catalog's groups.
//
// Options in non-quantitative groups count at most once no matter the
// requested quantity. Selections referencing unknown groups or options
// are skipped, not rejected; each skip is logged so data-integrity audits
// can find them.
func ResolveComplements(
	selections []models.ComplementSelectionRequest,
	groups []models.ComplementGroup,
	lineItemQuantity int,
	log *logger.Logger,
	requestID string,
) (float64, []models.LineItemComplementSelection) {
	groupIndex := make(map[string]models.ComplementGroup, len(groups))
	for _, g := range groups {
		groupIndex[g.GroupID] = g
	}

	var total float64
	var snapshot []models.LineItemComplementSelection

	for _, sel := range selections {
		group, ok := groupIndex[sel.GroupID]
		if !ok {
			log.Warn("complement_skipped", "Unknown complement group in request", requestID,
				map[string]interface{}{"group_id": sel.GroupID})
			continue
		}

		option, ok := findOption(group, sel.OptionID)
		if !ok {
			log.Warn("complement_skipped", "Unknown complement option in request", requestID,
				map[string]interface{}{"group_id": sel.GroupID, "option_id": sel.OptionID})
			continue
		}

		effectiveQty := sel.Quantity
		if !group.Quantitative {
			effectiveQty = 1
		}

		total += option.Price * float64(effectiveQty) * float64(lineItemQuantity)
		snapshot = append(snapshot, models.LineItemComplementSelection{
			GroupID:   sel.GroupID,
			OptionID:  sel.OptionID,
			Quantity:  effectiveQty,
			UnitPrice: option.Price,
		})
	}

	return total, snapshot
}

func findOption(group models.ComplementGroup, optionID string) (models.ComplementOption, bool) {
	for _, opt := range group.Options {
		if opt.OptionID == optionID {
			return opt, true
		}
	}
	return models.ComplementOption{}, false
}
