package redisx

import "time"

const (
	// Dedup for consumed bus events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cache of an inventory snapshot: inventory:{product_id}
	KeyInventory = "inventory:%s"
)

var (
	TTLDedup     = 48 * time.Hour
	TTLInventory = 5 * time.Minute
)
