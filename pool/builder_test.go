package pool

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/redisman/testkit"
)

// TestBlockingEndToEnd 测试阻塞池对真实协议端点的完整读写
func TestBlockingEndToEnd(t *testing.T) {
	mr := testkit.StartRedis(t)
	cfg := testkit.RedisConfig(t, mr, "main")
	ctx := context.Background()

	p, err := NewBlocking(cfg)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Get(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Do(ctx, "SET", "answer", "42")
	require.NoError(t, err)

	val, err := conn.Do(ctx, "GET", "answer")
	require.NoError(t, err)
	assert.Equal(t, "42", val)

	require.NoError(t, conn.Ping(ctx))
}

// TestBlockingPipeline 测试 MULTI/EXEC 批量执行
func TestBlockingPipeline(t *testing.T) {
	mr := testkit.StartRedis(t)
	cfg := testkit.RedisConfig(t, mr, "main")
	ctx := context.Background()

	p, err := NewBlocking(cfg)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Get(ctx)
	require.NoError(t, err)
	defer conn.Close()

	cmds, err := conn.Pipeline(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "a", "1", 0)
		pipe.Set(ctx, "b", "2", 0)
		pipe.Incr(ctx, "a")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	got, err := mr.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

// TestNonBlockingConnectsEagerly 测试非阻塞池构建时完成首次连接
func TestNonBlockingConnectsEagerly(t *testing.T) {
	mr := testkit.StartRedis(t)
	cfg := testkit.RedisConfig(t, mr, "main")
	ctx := context.Background()

	p, err := NewNonBlocking(ctx, cfg)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Ping(ctx))
}

// TestNonBlockingConnectExhausted 测试重试耗尽后返回 ErrConnect
func TestNonBlockingConnectExhausted(t *testing.T) {
	mr := testkit.StartRedis(t)
	cfg := testkit.RedisConfig(t, mr, "main")
	cfg.Retry.MaxRetries = 1
	cfg.Retry.BackoffBase = 5 * time.Millisecond
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.SocketTimeout = 200 * time.Millisecond
	mr.Close() // 端点不可达

	_, err := NewNonBlocking(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConnect)
}

// TestGetReturnsRedisNil 测试缓存未命中走 redis.Nil 而不损坏连接
func TestGetReturnsRedisNil(t *testing.T) {
	mr := testkit.StartRedis(t)
	cfg := testkit.RedisConfig(t, mr, "main")
	ctx := context.Background()

	p, err := NewBlocking(cfg)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Get(ctx)
	require.NoError(t, err)

	_, err = conn.Do(ctx, "GET", "missing")
	assert.ErrorIs(t, err, redis.Nil)
	require.NoError(t, conn.Close())

	assert.Equal(t, 1, p.Stats().Available)
}
