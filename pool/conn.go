package pool

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisman/xerrors"
)

// transportConn 对单条传输层连接的抽象，便于测试注入
type transportConn interface {
	Do(ctx context.Context, args ...any) (any, error)
	Ping(ctx context.Context) error
	Pipeline(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// factory 创建一条新的传输层连接
type factory func(ctx context.Context) (transportConn, error)

// redisConn 基于 go-redis 固定连接的 transportConn 实现
type redisConn struct {
	conn *redis.Conn
}

func (c *redisConn) Do(ctx context.Context, args ...any) (any, error) {
	return c.conn.Do(ctx, args...).Result()
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx).Err()
}

func (c *redisConn) Pipeline(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	return c.conn.TxPipelined(ctx, fn)
}

func (c *redisConn) Close() error {
	return c.conn.Close()
}

// pooledConn 池内连接及其空闲跟踪信息
type pooledConn struct {
	tc        transportConn
	createdAt time.Time
	lastUsed  time.Time
}

// leasedConn 租借给调用方的连接句柄，实现 Conn 接口
//
// 命令返回连接级错误（redis.Nil 除外）时标记为 broken，
// 归还时被销毁而不是放回空闲列表。
type leasedConn struct {
	pool *connPool
	pc   *pooledConn

	mu     sync.Mutex
	broken bool
	closed bool
}

func (c *leasedConn) Do(ctx context.Context, args ...any) (any, error) {
	res, err := c.pc.tc.Do(ctx, args...)
	c.observe(err)
	return res, err
}

func (c *leasedConn) Ping(ctx context.Context) error {
	err := c.pc.tc.Ping(ctx)
	c.observe(err)
	return err
}

func (c *leasedConn) Pipeline(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	cmds, err := c.pc.tc.Pipeline(ctx, fn)
	c.observe(err)
	return cmds, err
}

// observe 根据命令错误更新 broken 标记
func (c *leasedConn) observe(err error) {
	if err == nil || xerrors.Is(err, redis.Nil) {
		return
	}
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

func (c *leasedConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	broken := c.broken
	c.mu.Unlock()

	c.pool.put(c.pc, broken)
	return nil
}
