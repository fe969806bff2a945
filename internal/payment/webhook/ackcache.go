package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
)

const ackKeyPrefix = "payflow:webhook:ack:"

// AckCache remembers processor event ids whose outcome is already committed,
// together with the payment the event targeted (zero when orphaned or
// ignored). It is a fast path only; the ledger stays authoritative, so a miss
// or an error always falls through to the claim.
type AckCache interface {
	Lookup(ctx context.Context, processorEventID string) (paymentID snowflake.ID, hit bool, err error)
	Remember(ctx context.Context, processorEventID string, paymentID snowflake.ID, ttl time.Duration) error
}

type redisAckCache struct {
	client *redis.Client
}

// NewRedisAckCache returns nil for a nil client.
func NewRedisAckCache(client *redis.Client) AckCache {
	if client == nil {
		return nil
	}
	return &redisAckCache{client: client}
}

func (c *redisAckCache) Lookup(ctx context.Context, processorEventID string) (snowflake.ID, bool, error) {
	raw, err := c.client.Get(ctx, ackKey(processorEventID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := decodeAckValue(raw)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (c *redisAckCache) Remember(ctx context.Context, processorEventID string, paymentID snowflake.ID, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, ackKey(processorEventID), paymentID.String(), ttl).Err()
}

func ackKey(processorEventID string) string {
	return ackKeyPrefix + strings.TrimSpace(processorEventID)
}

// decodeAckValue parses a stored payment id. "0" is a committed event with
// no target payment.
func decodeAckValue(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("decode ack cache value %q: %w", raw, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("decode ack cache value %q: negative id", raw)
	}
	return id, nil
}
