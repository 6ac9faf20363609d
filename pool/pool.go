// Package pool 提供按数据库粒度的有界连接池，分阻塞和非阻塞两个变体。
//
// 两个变体共享同一套池核心，只在两处行为上不同：
//   - 获取连接：阻塞池在无空闲槽位时等待（受 PoolTimeout 限制）；
//     非阻塞池立即返回 ErrExhausted
//   - 重试策略：阻塞池把指数退避重试嵌入传输层（go-redis 的
//     MaxRetries/MinRetryBackoff/MaxRetryBackoff）；非阻塞池禁用传输层
//     重试，在构建时用自己的有界重试循环完成首次连接
//
// 底层传输是 go-redis：每个池持有一个 *redis.Client 负责拨号、认证、
// TLS 和 keepalive，池在其上管理固定连接（*redis.Conn）的租借、
// 空闲时间跟踪和回收。
//
// 基本使用：
//
//	p, _ := pool.NewBlocking(cfg, pool.WithLogger(logger))
//	conn, err := p.Get(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close() // 归还连接
//
//	res, err := conn.Do(ctx, "GET", "key")
package pool

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Conn 从池中租借出的单条连接
//
// Close 把连接归还给池（出错的连接会被销毁而不是归还）。
// 同一个 Conn 不支持并发使用。
type Conn interface {
	// Do 执行任意命令
	Do(ctx context.Context, args ...any) (any, error)

	// Ping 存活探测
	Ping(ctx context.Context) error

	// Pipeline 以 MULTI/EXEC 事务方式执行一批延迟操作，
	// 任何一条失败时整批丢弃
	Pipeline(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)

	// Close 归还连接；重复调用是安全的
	Close() error
}

// Pool 单个数据库的有界连接池
//
// 池在 Manager 的生命周期内最多创建一次，只在关停或强制重建时
// 显式关闭。
type Pool interface {
	// Get 租借一条连接
	//
	// 返回错误：
	//   - ErrExhausted: 无空闲槽位（非阻塞池立即返回；阻塞池等待超时后返回）
	//   - ErrClosed: 池已关闭
	Get(ctx context.Context) (Conn, error)

	// Ping 租借一条连接做存活探测后立即归还
	Ping(ctx context.Context) error

	// Stats 返回池状态的点时快照，在池自身的锁内采集
	Stats() Statistics

	// ReapIdle 回收空闲超过 maxIdle 的连接，返回回收数量
	ReapIdle(maxIdle time.Duration) int

	// Close 关闭池和底层客户端；幂等
	Close() error
}

// Statistics 连接池的点时快照
type Statistics struct {
	Created   uint64 `json:"created"`   // 累计创建的连接数
	Available int    `json:"available"` // 空闲连接数
	InUse     int    `json:"in_use"`    // 租借中的连接数
	MaxSize   int    `json:"max_size"`  // 池容量上限
}
