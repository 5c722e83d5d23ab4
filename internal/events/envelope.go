package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventInventoryUpdated = "InventoryUpdated"
	EventLowStockAlert    = "LowStockAlert"
	EventOrderCreated     = "OrderCreated"
	EventOrderCancelled   = "OrderCancelled"
	EventPaymentCaptured  = "PaymentCaptured"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339, doubles as the wire "timestamp"
	Producer      string          `json:"producer"`      // e.g. "product-service"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // product_id or order_id
	Payload       json.RawMessage `json:"payload"`
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes the event-specific payload out of an envelope.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
