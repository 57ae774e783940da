package cooldown

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTracker shares the cooldown window across replicas. The gate is a
// single SET NX PX, so check and record stay atomic per rule. On Redis
// errors it fails open with a warning, matching how the rest of the
// service treats infrastructure hiccups: remediation is never blocked by
// the tracker backend.
type RedisTracker struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisTracker creates a Redis-backed cooldown tracker.
func NewRedisTracker(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = "remedyd:cooldown"
	}
	return &RedisTracker{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (t *RedisTracker) key(ruleID string) string {
	return t.keyPrefix + ":" + ruleID
}

// Acquire implements Tracker.
func (t *RedisTracker) Acquire(ctx context.Context, ruleID string, cooldown time.Duration) bool {
	now := time.Now()

	// A zero cooldown never gates. SetNX with expiration 0 would set the
	// key without a TTL and block the rule forever, so record the
	// last-fired instant with a plain SET instead.
	if cooldown <= 0 {
		if err := t.client.Set(ctx, t.key(ruleID), strconv.FormatInt(now.UnixNano(), 10), 0).Err(); err != nil {
			t.logger.Warn("Cooldown record failed",
				zap.String("rule_id", ruleID),
				zap.Error(err),
			)
		}
		return true
	}

	ok, err := t.client.SetNX(ctx, t.key(ruleID), strconv.FormatInt(now.UnixNano(), 10), cooldown).Result()
	if err != nil {
		t.logger.Warn("Cooldown check failed, allowing remediation",
			zap.String("rule_id", ruleID),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// LastFired implements Tracker.
func (t *RedisTracker) LastFired(ctx context.Context, ruleID string) (time.Time, bool) {
	val, err := t.client.Get(ctx, t.key(ruleID)).Result()
	if err != nil {
		if err != redis.Nil {
			t.logger.Warn("Cooldown lookup failed",
				zap.String("rule_id", ruleID),
				zap.Error(err),
			)
		}
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}
