// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE. Report intake uses it to stop a single reporter from
// flooding an app with reports.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RuleReport allows 10 reports per minute per reporter per app.
var RuleReport = Rule{Key: "rl:report:", Limit: 10, Window: time.Minute}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{client: client, logger: logger.Named("ratelimit")}
}

// Allow checks whether identifier is within the limit defined by rule. It
// increments the counter and sets the expiry on first access.
//
// On Redis errors it fails open: the error is returned alongside true so a
// Redis outage does not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn("EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the counter would never reset.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// ReporterThrottle limits reports per reporter within an app.
type ReporterThrottle struct {
	limiter *Limiter
	rule    Rule
}

// NewReporterThrottle returns a throttle applying rule to each
// (app, reporter) pair.
func NewReporterThrottle(limiter *Limiter, rule Rule) *ReporterThrottle {
	return &ReporterThrottle{limiter: limiter, rule: rule}
}

// Allow reports whether reporterHandle may file another report in appHandle.
func (t *ReporterThrottle) Allow(ctx context.Context, appHandle, reporterHandle string) (bool, error) {
	return t.limiter.Allow(ctx, appHandle+":"+reporterHandle, t.rule)
}
