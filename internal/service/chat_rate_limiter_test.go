package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisChatRateLimiterAllow(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisChatRateLimiter
		if !l.Allow(1) {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisChatRateLimiter{
			client: mock,
			window: 2 * time.Minute,
			max:    3,
			prefix: "chat:rl:",
		}
		if !l.Allow(7) {
			t.Fatalf("expected allow at count 2 of 3")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "chat:rl:7" {
			t.Fatalf("unexpected redis key %v", mock.lastKeys)
		}
	})

	t.Run("deny when over max", func(t *testing.T) {
		l := &redisChatRateLimiter{
			client: &mockRedisEvaler{result: 4},
			window: time.Minute,
			max:    3,
			prefix: "chat:rl:",
		}
		if l.Allow(7) {
			t.Fatalf("expected deny at count 4 of 3")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisChatRateLimiter{
			client: &mockRedisEvaler{err: errors.New("down")},
			window: time.Minute,
			max:    3,
			prefix: "chat:rl:",
		}
		if !l.Allow(7) {
			t.Fatalf("expected fail-open when redis errors")
		}
	})
}
