package inventory

import "context"

// Store persists ledger rows and their audit trail. Mutate runs fn against
// the current row while holding it exclusively (row lock or equivalent), so
// concurrent mutations of one product serialize; the updated row and the
// returned transaction, if any, commit atomically. An error from fn aborts
// with nothing written.
type Store interface {
	Get(ctx context.Context, productID string) (Record, error)
	Mutate(ctx context.Context, productID string, fn func(rec *Record) (*Transaction, error)) (Record, error)
	ListTransactions(ctx context.Context, productID string, page, limit int) ([]Transaction, error)
	ListLowStock(ctx context.Context, override *int) ([]Record, error)
}

// BelowThreshold is the low-stock predicate shared by every Store
// implementation. An override caps the listing but never relaxes the row's
// own threshold: the row must still sit at or under its configured value.
func BelowThreshold(rec Record, override *int) bool {
	if !rec.IsTracked {
		return false
	}
	if override != nil && rec.Available > *override {
		return false
	}
	return rec.Available <= rec.LowStockThreshold
}
