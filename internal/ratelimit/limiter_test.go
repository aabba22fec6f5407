package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testRule = Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

func newTestLimiter(t *testing.T) (*Limiter, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, testRule.Key+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewLimiter(client, zap.NewNop()), client
}

func TestAllow_UpToLimit(t *testing.T) {
	l, client := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < testRule.Limit; i++ {
		ok, err := l.Allow(ctx, "id", testRule)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := l.Allow(ctx, "id", testRule)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, testRule.Key+"id").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestReporterThrottle_ScopedPerApp(t *testing.T) {
	l, _ := newTestLimiter(t)
	throttle := NewReporterThrottle(l, testRule)
	ctx := context.Background()

	for i := 0; i < testRule.Limit; i++ {
		ok, err := throttle.Allow(ctx, "app1", "r1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _ := throttle.Allow(ctx, "app1", "r1")
	assert.False(t, ok)

	ok, _ = throttle.Allow(ctx, "app2", "r1")
	assert.True(t, ok)
	ok, _ = throttle.Allow(ctx, "app1", "r2")
	assert.True(t, ok)
}

func TestAllow_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client, zap.NewNop())

	ok, err := l.Allow(context.Background(), "id", testRule)
	assert.Error(t, err)
	assert.True(t, ok)
}
