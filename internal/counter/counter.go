// Package counter issues per-day order sequence numbers from Redis.
package counter

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/order-lifecycle/internal/domain/order"
)

const (
	defaultPrefix = "orders:seq:"
	// Keys expire well after their day is over.
	keyTTL = 48 * time.Hour
)

var _ order.NumberSequence = (*Daily)(nil)

// Daily is an order number sequence that restarts every day.
type Daily struct {
	client redis.Cmdable
	prefix string
}

// NewDaily returns a Daily counter storing keys under prefix. An empty prefix
// selects the default one.
func NewDaily(client redis.Cmdable, prefix string) *Daily {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Daily{client: client, prefix: prefix}
}

// Next increments and returns the counter of the given day.
func (d *Daily) Next(ctx context.Context, day time.Time) (int64, error) {
	key := d.key(day)

	var incr *redis.IntCmd
	if _, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	}); err != nil {
		return 0, errors.Wrapf(err, "increment %s", key)
	}
	return incr.Val(), nil
}

func (d *Daily) key(day time.Time) string {
	return d.prefix + day.Format("20060102")
}
