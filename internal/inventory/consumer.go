package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/bus"
	"github.com/ariefcatur/go-commerce-inventory.git/internal/events"
)

// OrderEventHandler applies order lifecycle events to the ledger: a created
// order reserves stock, a cancelled order releases it, a captured payment
// deducts it. Wired as a bus.Consumer handler.
type OrderEventHandler struct {
	Ledger *Service
	Dedup  Deduper
}

func (h *OrderEventHandler) Handle(ctx context.Context, m kafkago.Message) error {
	key := bus.RoutingKey(m)
	switch key {
	case events.KeyOrderCreated, events.KeyOrderCancelled, events.KeyPaymentCaptured:
	default:
		return nil // not ours, commit and move on
	}

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("inventory: drop malformed event on %s: %v", key, err)
		return nil // poison message, do not redeliver forever
	}

	seen, err := h.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	switch key {
	case events.KeyOrderCreated:
		p, err := events.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			log.Printf("inventory: drop %s event_id=%s: %v", key, env.EventID, err)
			return nil
		}
		if err := h.apply(ctx, p.OrderID, p.Items, h.Ledger.Reserve); err != nil {
			return err
		}
	case events.KeyOrderCancelled:
		p, err := events.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			log.Printf("inventory: drop %s event_id=%s: %v", key, env.EventID, err)
			return nil
		}
		if err := h.apply(ctx, p.OrderID, p.Items, h.Ledger.Release); err != nil {
			return err
		}
	case events.KeyPaymentCaptured:
		p, err := events.UnwrapPayload[events.PaymentCapturedPayload](env.Payload)
		if err != nil {
			log.Printf("inventory: drop %s event_id=%s: %v", key, env.EventID, err)
			return nil
		}
		if err := h.apply(ctx, p.OrderID, p.Items, h.Ledger.Deduct); err != nil {
			return err
		}
	}

	return h.Dedup.Mark(ctx, env.EventID)
}

type ledgerOp func(ctx context.Context, productID string, qty int, reference string) (Record, error)

// apply runs one ledger operation per item. Business rejections (unknown
// product, not enough stock, over-release) are terminal for the event:
// retrying cannot make them succeed, so they are logged and skipped.
// Infrastructure errors propagate so the message is redelivered.
func (h *OrderEventHandler) apply(ctx context.Context, orderID string, items []events.ItemQty, op ledgerOp) error {
	for _, it := range items {
		_, err := op(ctx, it.ProductID, it.Qty, orderID)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound),
			errors.Is(err, ErrInsufficientInventory),
			errors.Is(err, ErrInvalidState):
			log.Printf("inventory: order=%s product=%s qty=%d rejected: %v", orderID, it.ProductID, it.Qty, err)
		default:
			return err
		}
	}
	return nil
}
