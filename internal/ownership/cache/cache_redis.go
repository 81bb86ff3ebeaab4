// Package cache serves QueryOwnership views from Redis.
//
// Views for one subject live in a single hash keyed by rights category, so a
// commit touching the subject drops every cached view with one DEL. Redis
// failures degrade to cache misses, and a circuit breaker stops reads and
// writes from waiting on a Redis that keeps failing. Invalidation always
// reaches Redis; a view cached before a failed invalidation lives at most one TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	ledgermetrics "rightsledger/internal/ownership/metrics"
	"rightsledger/internal/ownership/models"
	"rightsledger/pkg/platform/circuit"
)

const (
	keyPrefix  = "rightsledger:ownership:"
	allField   = "*"
	defaultTTL = 5 * time.Minute
)

// RedisCache implements the coordinator's OwnershipCache.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *ledgermetrics.Metrics
	breaker *circuit.Breaker
}

type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(c *RedisCache) {
		c.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *RedisCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

// NewRedis wraps client. The client lifecycle is managed by the caller.
func NewRedis(client *redis.Client, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, ttl: defaultTTL, breaker: circuit.New("ownership-cache")}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func subjectKey(subject models.Subject) string {
	return keyPrefix + subject.String()
}

func categoryField(category models.RightsCategory) string {
	if category == "" {
		return allField
	}
	return string(category)
}

// record feeds the breaker and logs transitions.
func (c *RedisCache) record(ctx context.Context, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "ownership cache recovered", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "ownership cache disabled after repeated failures", "breaker", c.breaker.Name(), "error", err)
	}
}

func (c *RedisCache) Get(ctx context.Context, subject models.Subject, category models.RightsCategory) (*models.OwnershipView, bool) {
	if !c.breaker.Allow() {
		c.metrics.IncCacheLookup(false)
		return nil, false
	}
	raw, err := c.client.HGet(ctx, subjectKey(subject), categoryField(category)).Bytes()
	c.record(ctx, err)
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCacheLookup(false)
		return nil, false
	}
	if err != nil {
		c.metrics.IncCacheLookup(false)
		c.logger.WarnContext(ctx, "ownership cache read failed", "subject", subject.String(), "error", err)
		return nil, false
	}
	var view models.OwnershipView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.metrics.IncCacheLookup(false)
		c.logger.WarnContext(ctx, "ownership cache entry unreadable", "subject", subject.String(), "error", err)
		return nil, false
	}
	c.metrics.IncCacheLookup(true)
	return &view, true
}

func (c *RedisCache) Set(ctx context.Context, subject models.Subject, category models.RightsCategory, view *models.OwnershipView) {
	if view == nil || !c.breaker.Allow() {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		c.logger.WarnContext(ctx, "ownership view not cacheable", "subject", subject.String(), "error", err)
		return
	}
	key := subjectKey(subject)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, categoryField(category), raw)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	c.record(ctx, err)
	if err != nil {
		c.logger.WarnContext(ctx, "ownership cache write failed", "subject", subject.String(), "error", err)
	}
}

// Invalidate drops every cached view for subject.
func (c *RedisCache) Invalidate(ctx context.Context, subject models.Subject) {
	err := c.client.Del(ctx, subjectKey(subject)).Err()
	c.record(ctx, err)
	if err != nil {
		c.logger.WarnContext(ctx, "ownership cache invalidation failed", "subject", subject.String(), "error", err)
	}
}
