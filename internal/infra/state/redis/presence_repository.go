package redisstate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// presenceTTL bounds how long a stale entry survives an instance that died
// without running MarkOffline.
const presenceTTL = 12 * time.Hour

// RedisPresenceRepository is the Redis implementation of repository.PresenceRepository.
type RedisPresenceRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPresenceRepository creates a RedisPresenceRepository.
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "pp:"
	}
	return &RedisPresenceRepository{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---
func (r *RedisPresenceRepository) onlineSetKey() string {
	return r.keyPrefix + "presence:online"
}

func (r *RedisPresenceRepository) participantKey(participantID string) string {
	return fmt.Sprintf("%spresence:participant:%s", r.keyPrefix, participantID)
}

// MarkOnline records the participant in the online set and stamps when it connected.
func (r *RedisPresenceRepository) MarkOnline(ctx context.Context, participantID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.onlineSetKey(), participantID)
	pipe.Expire(ctx, r.onlineSetKey(), presenceTTL)
	pipe.Set(ctx, r.participantKey(participantID), time.Now().UTC().Format(time.RFC3339Nano), presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to mark participant %s online: %w", participantID, err)
	}
	return nil
}

// MarkOffline removes the participant from the online set.
func (r *RedisPresenceRepository) MarkOffline(ctx context.Context, participantID string) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, r.onlineSetKey(), participantID)
	pipe.Del(ctx, r.participantKey(participantID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to mark participant %s offline: %w", participantID, err)
	}
	return nil
}

// ListOnline returns the online participant ids in lexical order.
func (r *RedisPresenceRepository) ListOnline(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.onlineSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list online participants from %s: %w", r.onlineSetKey(), err)
	}
	sort.Strings(ids)
	return ids, nil
}
