package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes call updates on a per-tenant pub/sub channel.
// Channel layout: calls:<tenant_id>.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func Channel(tenantID string) string {
	return "calls:" + tenantID
}

func (b *RedisBroadcaster) PublishCallUpdate(ctx context.Context, u CallUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("broadcast: marshal update: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(u.TenantID), payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish %s: %w", Channel(u.TenantID), err)
	}
	return nil
}
