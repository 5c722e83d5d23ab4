package events

// ---- Published by the product service ----

type InventoryUpdatedPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

type LowStockAlertPayload struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Threshold int    `json:"threshold"`
}

// ---- Consumed from the order service ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	Items   []ItemQty `json:"items"`
}

type OrderCancelledPayload struct {
	OrderID string    `json:"order_id"`
	Reason  string    `json:"reason,omitempty"`
	Items   []ItemQty `json:"items"`
}

type PaymentCapturedPayload struct {
	OrderID     string    `json:"order_id"`
	PaymentRef  string    `json:"payment_ref"`
	AmountCents int       `json:"amount_cents"`
	Items       []ItemQty `json:"items"`
}
