package inventory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/redisx"
)

// Deduper remembers processed event ids so redelivered bus messages do not
// mutate the ledger twice.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// RedisDeduper keys dedup entries by service name so each consumer group
// tracks its own progress.
type RedisDeduper struct {
	Client  *redis.Client
	Service string
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return redisx.Exists(ctx, d.Client, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID))
}

func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.Client.Set(ctx, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID), "1", redisx.TTLDedup).Err()
}
