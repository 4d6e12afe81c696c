package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/storefront-kit/storefront/event"
)

// InventoryUpdate is the payload of a product.inventory.update event. The
// new count is an absolute value, so applying the same message twice lands
// on the same state.
type InventoryUpdate struct {
	ProductID string `json:"product_id"`
	OldCount  int    `json:"old_count"`
	NewCount  int    `json:"new_count"`
}

// HandleEvent consumes inventory update events. It overwrites the product's
// inventory count with the absolute value from the message and drops the
// cached entry rather than rewriting it, so the next read repopulates from
// the database. Unknown kinds and vanished products are discarded; store
// failures bubble up so the message is redelivered.
func (s *Service) HandleEvent(ctx context.Context, ev event.Event) error {
	if ev.Kind != event.KindInventoryUpdate {
		return fmt.Errorf("%w: unexpected kind %s", event.ErrDiscard, ev.Kind)
	}

	var update InventoryUpdate
	if err := ev.DecodeData(&update); err != nil {
		return fmt.Errorf("%w: %v", event.ErrDiscard, err)
	}
	if update.ProductID == "" {
		return fmt.Errorf("%w: missing product_id", event.ErrDiscard)
	}
	if update.NewCount < 0 {
		return fmt.Errorf("%w: negative inventory count %d", event.ErrDiscard, update.NewCount)
	}

	count := update.NewCount
	_, err := s.store.UpdateProduct(ctx, update.ProductID, ProductPatch{InventoryCount: &count})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return fmt.Errorf("%w: product %s no longer exists", event.ErrDiscard, update.ProductID)
		}
		return fmt.Errorf("catalog: apply inventory update for %s: %w", update.ProductID, err)
	}

	s.cache.Delete(ctx, productKey(update.ProductID))
	s.logger.Info("inventory updated",
		"product_id", update.ProductID, "old_count", update.OldCount, "new_count", update.NewCount)
	return nil
}
