package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/events"
)

// Publisher is the slice of the event bus the ledger needs. A false return
// means the event was dropped; the ledger write has already committed and is
// never rolled back for it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, env events.Envelope) bool
}

// Service owns the stock invariants: available = quantity - reserved, and
// none of the three ever negative. Every mutation goes through Store.Mutate
// so concurrent calls on one product serialize at the storage layer.
type Service struct {
	Store       Store
	Bus         Publisher
	ServiceName string
}

// Get returns the ledger row for one product.
func (s *Service) Get(ctx context.Context, productID string) (Record, error) {
	return s.Store.Get(ctx, productID)
}

// Update applies a partial update. Unset fields keep their current value;
// available is recomputed and the whole call fails with no write when it
// would go negative. A quantity change appends a RESTOCK or ADJUSTMENT row.
func (s *Service) Update(ctx context.Context, productID string, patch UpdatePatch) (Record, error) {
	rec, err := s.Store.Mutate(ctx, productID, func(rec *Record) (*Transaction, error) {
		newQty := rec.Quantity
		newReserved := rec.Reserved
		if patch.Quantity != nil {
			newQty = *patch.Quantity
		}
		if patch.Reserved != nil {
			newReserved = *patch.Reserved
		}
		newAvailable := newQty - newReserved
		if newQty < 0 || newReserved < 0 || newAvailable < 0 {
			return nil, fmt.Errorf("%w: quantity %d, reserved %d", ErrInvalidState, newQty, newReserved)
		}

		oldQty := rec.Quantity
		rec.Quantity = newQty
		rec.Reserved = newReserved
		rec.Available = newAvailable
		if patch.LowStockThreshold != nil {
			if *patch.LowStockThreshold < 0 {
				return nil, fmt.Errorf("%w: negative low stock threshold", ErrInvalidState)
			}
			rec.LowStockThreshold = *patch.LowStockThreshold
		}
		if patch.IsTracked != nil {
			rec.IsTracked = *patch.IsTracked
		}

		if newQty == oldQty {
			return nil, nil // no quantity movement, nothing to audit
		}
		t := &Transaction{Type: TxRestock, Quantity: newQty - oldQty, Reason: "manual restock"}
		if newQty < oldQty {
			t.Type = TxAdjustment
			t.Reason = "manual adjustment"
		}
		return t, nil
	})
	if err != nil {
		return Record{}, err
	}

	s.publish(ctx, events.KeyInventoryUpdated, events.EventInventoryUpdated, rec.ProductID,
		events.InventoryUpdatedPayload{
			ProductID: rec.ProductID,
			Quantity:  rec.Quantity,
			Reserved:  rec.Reserved,
			Available: rec.Available,
		})
	s.alertIfLow(ctx, rec)
	return rec, nil
}

// Reserve places a provisional hold: reserved grows, available shrinks, the
// quantity on hand stays put. No event fires, a hold is not a catalog-visible
// change.
func (s *Service) Reserve(ctx context.Context, productID string, qty int, reference string) (Record, error) {
	return s.Store.Mutate(ctx, productID, func(rec *Record) (*Transaction, error) {
		if qty <= 0 || rec.Available < qty {
			return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientInventory, qty, rec.Available)
		}
		rec.Reserved += qty
		rec.Available -= qty
		return &Transaction{Type: TxReserve, Quantity: -qty, Reason: "reservation hold", Reference: reference}, nil
	})
}

// Release returns held units to the available pool.
func (s *Service) Release(ctx context.Context, productID string, qty int, reference string) (Record, error) {
	return s.Store.Mutate(ctx, productID, func(rec *Record) (*Transaction, error) {
		if qty <= 0 || rec.Reserved < qty {
			return nil, fmt.Errorf("%w: cannot release %d, reserved %d", ErrInvalidState, qty, rec.Reserved)
		}
		rec.Reserved -= qty
		rec.Available += qty
		return &Transaction{Type: TxRelease, Quantity: qty, Reason: "reservation release", Reference: reference}, nil
	})
}

// Deduct finalizes a sale, consuming held units first and dipping into the
// available pool for the remainder.
func (s *Service) Deduct(ctx context.Context, productID string, qty int, reference string) (Record, error) {
	rec, err := s.Store.Mutate(ctx, productID, func(rec *Record) (*Transaction, error) {
		if qty <= 0 {
			return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientInventory, qty, rec.Available)
		}
		fromReserved := rec.Reserved
		if qty < fromReserved {
			fromReserved = qty
		}
		fromAvailable := qty - fromReserved
		if fromAvailable > rec.Available {
			return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientInventory, qty, rec.Available)
		}
		rec.Quantity -= qty
		rec.Reserved -= fromReserved
		rec.Available -= fromAvailable
		return &Transaction{Type: TxSale, Quantity: -qty, Reason: "sale", Reference: reference}, nil
	})
	if err != nil {
		return Record{}, err
	}

	s.alertIfLow(ctx, rec)
	return rec, nil
}

// History returns a page of audit rows, newest first.
func (s *Service) History(ctx context.Context, productID string, page, limit int) ([]Transaction, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	// 404 for unknown products rather than an empty page
	if _, err := s.Store.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.Store.ListTransactions(ctx, productID, page, limit)
}

// LowStock lists tracked rows at or under their threshold; a non-nil override
// additionally caps the listing (see BelowThreshold).
func (s *Service) LowStock(ctx context.Context, override *int) ([]Record, error) {
	return s.Store.ListLowStock(ctx, override)
}

func (s *Service) alertIfLow(ctx context.Context, rec Record) {
	if !rec.IsTracked || rec.Available > rec.LowStockThreshold {
		return
	}
	s.publish(ctx, events.KeyInventoryLowStock, events.EventLowStockAlert, rec.ProductID,
		events.LowStockAlertPayload{
			ProductID: rec.ProductID,
			Available: rec.Available,
			Threshold: rec.LowStockThreshold,
		})
}

func (s *Service) publish(ctx context.Context, routingKey, eventType, correlationID string, payload any) {
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: correlationID,
		Payload:       events.MustMarshal(payload),
	}
	// Drops are already logged by the bus; the ledger write stands either way.
	_ = s.Bus.Publish(ctx, routingKey, env)
}
