package inventory

import "time"

// Record is the stock ledger row for one product. Available is stored
// denormalized but must always equal Quantity - Reserved.
type Record struct {
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	IsTracked         bool      `json:"is_tracked"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type TxType string

const (
	TxRestock    TxType = "RESTOCK"
	TxAdjustment TxType = "ADJUSTMENT"
	TxReserve    TxType = "RESERVE"
	TxRelease    TxType = "RELEASE"
	TxSale       TxType = "SALE"
)

// Transaction is an append-only audit row, one per ledger mutation.
// Quantity is the signed delta applied.
type Transaction struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Type      TxType    `json:"type"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UpdatePatch carries the fields of an inventory update; nil means keep the
// current value.
type UpdatePatch struct {
	Quantity          *int  `json:"quantity"`
	Reserved          *int  `json:"reserved"`
	LowStockThreshold *int  `json:"low_stock_threshold"`
	IsTracked         *bool `json:"is_tracked"`
}
