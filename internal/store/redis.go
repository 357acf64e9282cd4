package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"schooldesk/internal/stats"
)

// Redis wraps the redis client shared by the queue, the limiter and the cache.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// SummaryCache keeps per-student attendance summaries as JSON strings.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache builds a cache whose entries expire after ttl.
func NewSummaryCache(r *Redis, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: r.Client, ttl: ttl}
}

func summaryKey(studentID string) string { return "attendance:summary:" + studentID }

// Get returns the cached summary; ok is false on a miss.
func (c *SummaryCache) Get(ctx context.Context, studentID string) (stats.Summary, bool, error) {
	raw, err := c.client.Get(ctx, summaryKey(studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats.Summary{}, false, nil
	}
	if err != nil {
		return stats.Summary{}, false, err
	}
	var s stats.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return stats.Summary{}, false, err
	}
	return s, true, nil
}

// Set stores the summary, replacing any previous one.
func (c *SummaryCache) Set(ctx context.Context, studentID string, s stats.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(studentID), raw, c.ttl).Err()
}
