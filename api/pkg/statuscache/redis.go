package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "robots:online"

func statusKey(robotID string) string {
	return fmt.Sprintf("robot:status:%s", robotID)
}

// RedisCache is the remote backend, grounded on the VMS live-session
// service's SMembers/SAdd/SCard + key-TTL pattern from the retrieval
// pack's other_examples.
type RedisCache struct {
	client *redis.Client

	hits, misses, updates, evictions int64
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache dials url and verifies reachability with a PING.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("statuscache: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("statuscache: redis ping: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Update(ctx context.Context, robotID string, status map[string]interface{}, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	record := Record{RobotID: robotID, Status: status, LastSeen: time.Now(), SessionID: sessionID}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("statuscache: marshal record: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, statusKey(robotID), payload, ttl)
		pipe.SAdd(ctx, onlineSetKey, robotID)
		pipe.Expire(ctx, onlineSetKey, 2*ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("statuscache: update pipeline: %w", err)
	}

	atomic.AddInt64(&c.updates, 1)
	return nil
}

func (c *RedisCache) Get(ctx context.Context, robotID string) (*Record, error) {
	payload, err := c.client.Get(ctx, statusKey(robotID)).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statuscache: get: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("statuscache: unmarshal record: %w", err)
	}

	atomic.AddInt64(&c.hits, 1)
	return &record, nil
}

func (c *RedisCache) ListOnline(ctx context.Context) ([]string, error) {
	robotIDs, err := c.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("statuscache: smembers: %w", err)
	}
	return robotIDs, nil
}

func (c *RedisCache) ListOnlineStatuses(ctx context.Context) ([]Record, error) {
	robotIDs, err := c.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	if len(robotIDs) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(robotIDs))
	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, robotID := range robotIDs {
			cmds[i] = pipe.Get(ctx, statusKey(robotID))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("statuscache: list online statuses pipeline: %w", err)
	}

	records := make([]Record, 0, len(robotIDs))
	for _, cmd := range cmds {
		payload, err := cmd.Bytes()
		if err != nil {
			// Entry expired between SMEMBERS and GET; the set TTL
			// window (2T) is meant to make this rare, not impossible.
			atomic.AddInt64(&c.evictions, 1)
			continue
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *RedisCache) Remove(ctx context.Context, robotID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, statusKey(robotID))
		pipe.SRem(ctx, onlineSetKey, robotID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("statuscache: remove: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateSession(ctx context.Context, sessionID string) error {
	records, err := c.ListOnlineStatuses(ctx)
	if err != nil {
		return err
	}

	for _, record := range records {
		if record.SessionID == sessionID {
			if err := c.Remove(ctx, record.RobotID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *RedisCache) HealthCheck(ctx context.Context) Health {
	healthy := c.client.Ping(ctx).Err() == nil
	return Health{
		Backend:   "redis",
		Healthy:   healthy,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Updates:   atomic.LoadInt64(&c.updates),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}
