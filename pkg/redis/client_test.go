package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:u1", 2, 1500*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, want, allowed, "call %d", i+1)
		require.EqualValues(t, i+1, count)
	}
	require.Equal(t, []int64{1500}, mock.expiries["sm:rate_limit:checkout:u1"])
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	_, _, err := client.FixedWindowAllow(context.Background(), "s", 1, 0)
	require.Error(t, err)
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("checkout", "abc")

	set, err := client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	require.True(t, set)
	set, err = client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	require.False(t, set)

	require.NoError(t, client.Set(ctx, key, "done", time.Minute))
	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "done", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["sm:cron-worker:lock:prod"] = "token-a"

	deleted, err := client.CompareAndDelete(ctx, "sm:cron-worker:lock:prod", "token-b")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Contains(t, mock.data, "sm:cron-worker:lock:prod")

	deleted, err = client.CompareAndDelete(ctx, "sm:cron-worker:lock:prod", "token-a")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NotContains(t, mock.data, "sm:cron-worker:lock:prod")
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	require.ErrorIs(t, client.Ping(context.Background()), ErrNotInitialized)
	_, err := client.CompareAndDelete(context.Background(), "k", "v")
	require.ErrorIs(t, err, ErrNotInitialized)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "sm:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "sm:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "sm:idempotency:id", client.IdempotencyKey(" ", "id"))
	require.Equal(t, "sm", Key())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, ReadTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.ReadTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
}

// mockCmdable emulates the two lua scripts by identity.
type mockCmdable struct {
	data     map[string]string
	counters map[string]int64
	expiries map[string][]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     map[string]string{},
		counters: map[string]int64{},
		expiries: map[string][]int64{},
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case fixedWindowScript:
		m.counters[key]++
		if m.counters[key] == 1 {
			m.expiries[key] = append(m.expiries[key], args[0].(int64))
		}
		return redis.NewCmdResult(m.counters[key], nil)
	case compareAndDeleteScript:
		if v, ok := m.data[key]; ok && v == args[0] {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unexpected script"))
}
