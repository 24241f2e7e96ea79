package infra

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRedisAdapter_IncrExpireAt(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	a, err := NewGoRedisAdapter(addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	key := "arecko:test:" + uuid.NewString()
	expireAt := time.Now().Add(time.Minute)

	n, err := a.IncrExpireAt(ctx, key, expireAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = a.IncrExpireAt(ctx, key, expireAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := a.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewGoRedisAdapter_Unreachable(t *testing.T) {
	_, err := NewGoRedisAdapter("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
