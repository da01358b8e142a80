package checkout

import (
	"context"

	"restaurant-checkout/internal/apperr"
	"restaurant-checkout/internal/logger"
	"restaurant-checkout/internal/models"
)

// LineItemPricer prices one cart line against a center's catalog: base
// unit price plus nested complement selections. The stored unit price
// always excludes complement contributions.
type LineItemPricer struct {
	catalog     CatalogProvider
	complements ComplementCatalogProvider
	logger      *logger.Logger
}

// NewLineItemPricer creates a pricer over the catalog collaborators.
func NewLineItemPricer(catalog CatalogProvider, complements ComplementCatalogProvider, log *logger.Logger) *LineItemPricer {
	return &LineItemPricer{
		catalog:     catalog,
		complements: complements,
		logger:      log,
	}
}

// Price resolves and prices one requested cart line at the given center.
func (p *LineItemPricer) Price(ctx context.Context, centerID string, item models.CartItemRequest, requestID string) (*models.OrderLineItem, error) {
	variant, err := models.NewItemVariant(models.ItemKind(item.Kind), item.Ref)
	if err != nil {
		return nil, apperr.New(apperr.Validation, apperr.CodeInvalidPayload, "%v", err)
	}

	catalogItem, err := p.catalog.Resolve(ctx, variant, centerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err,
			"catalog lookup failed for %s %s", variant.Kind(), variant.Ref())
	}
	if catalogItem == nil {
		return nil, apperr.New(apperr.NotFound, apperr.CodeItemNotFound,
			"%s %s not found at center %s", variant.Kind(), variant.Ref(), centerID)
	}
	if !catalogItem.IsActive || !catalogItem.IsAvailable {
		return nil, apperr.New(apperr.Conflict, apperr.CodeItemUnavailable,
			"%s %s is not available at center %s", variant.Kind(), variant.Ref(), centerID)
	}

	lineItem := &models.OrderLineItem{
		Variant:     variant,
		Quantity:    item.Quantity,
		UnitPrice:   catalogItem.UnitPrice,
		Description: catalogItem.Description,
	}

	if len(item.Complements) > 0 {
		groups, err := p.complements.ListGroupsFor(ctx, variant, centerID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, apperr.CodeProviderFailure, err,
				"complement catalog lookup failed for %s %s", variant.Kind(), variant.Ref())
		}
		lineItem.ComplementTotal, lineItem.Complements =
			ResolveComplements(item.Complements, groups, item.Quantity, p.logger, requestID)
	}

	return lineItem, nil
}
