package pool

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/xerrors"
)

// connPool 阻塞/非阻塞两个变体共享的池核心
//
// slots 是容量为 maxSize 的令牌通道，令牌只在租借期间被占用；
// 空闲列表由 mu 保护，客户端路径和回收器共用这把锁。
type connPool struct {
	name        string
	blocking    bool
	maxSize     int
	poolTimeout time.Duration
	newConn     factory
	client      *redis.Client // 底层客户端，测试中可为 nil
	logger      clog.Logger

	slots chan struct{}

	mu      sync.Mutex
	idle    []*pooledConn
	numOpen int
	created uint64
	closed  bool
}

// newConnPool 创建池核心（内部函数）
func newConnPool(name string, blocking bool, maxSize int, poolTimeout time.Duration,
	newConn factory, client *redis.Client, logger clog.Logger) *connPool {

	slots := make(chan struct{}, maxSize)
	for i := 0; i < maxSize; i++ {
		slots <- struct{}{}
	}

	return &connPool{
		name:        name,
		blocking:    blocking,
		maxSize:     maxSize,
		poolTimeout: poolTimeout,
		newConn:     newConn,
		client:      client,
		logger:      logger,
		slots:       slots,
	}
}

func (p *connPool) Get(ctx context.Context) (Conn, error) {
	if err := p.acquireSlot(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.releaseSlot()
		return nil, ErrClosed
	}

	// 优先复用空闲连接，后进先出
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return &leasedConn{pool: p, pc: pc}, nil
	}
	p.mu.Unlock()

	// 拨号在锁外进行
	tc, err := p.newConn(ctx)
	if err != nil {
		p.releaseSlot()
		return nil, xerrors.Wrapf(err, "pool[%s]: dial", p.name)
	}

	now := time.Now()
	pc := &pooledConn{tc: tc, createdAt: now, lastUsed: now}

	p.mu.Lock()
	p.numOpen++
	p.created++
	p.mu.Unlock()

	return &leasedConn{pool: p, pc: pc}, nil
}

// acquireSlot 获取租借令牌；阻塞与非阻塞变体的唯一分叉点
func (p *connPool) acquireSlot(ctx context.Context) error {
	if !p.blocking {
		select {
		case <-p.slots:
			return nil
		default:
			return ErrExhausted
		}
	}

	timer := time.NewTimer(p.poolTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return xerrors.Wrapf(ErrExhausted, "pool[%s]: wait timed out after %v", p.name, p.poolTimeout)
	}
}

func (p *connPool) releaseSlot() {
	select {
	case p.slots <- struct{}{}:
	default:
		// 令牌已满，说明出现了重复归还，丢弃即可
	}
}

// put 归还连接；broken 的连接被销毁而不是放回空闲列表
func (p *connPool) put(pc *pooledConn, broken bool) {
	p.mu.Lock()
	if p.closed || broken {
		p.numOpen--
		p.mu.Unlock()
		if err := pc.tc.Close(); err != nil {
			p.logger.Debug("failed to close connection", clog.Error(err))
		}
		p.releaseSlot()
		return
	}

	pc.lastUsed = time.Now()
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
	p.releaseSlot()
}

func (p *connPool) Ping(ctx context.Context) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Ping(ctx)
}

func (p *connPool) Stats() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Statistics{
		Created:   p.created,
		Available: len(p.idle),
		InUse:     p.numOpen - len(p.idle),
		MaxSize:   p.maxSize,
	}
}

func (p *connPool) ReapIdle(maxIdle time.Duration) int {
	now := time.Now()

	p.mu.Lock()
	var keep []*pooledConn
	var evict []*pooledConn
	for _, pc := range p.idle {
		if now.Sub(pc.lastUsed) > maxIdle {
			evict = append(evict, pc)
		} else {
			keep = append(keep, pc)
		}
	}
	p.idle = keep
	p.numOpen -= len(evict)
	p.mu.Unlock()

	// 关闭在锁外进行；并发下已被移除的连接关闭失败时吞掉错误
	for _, pc := range evict {
		if err := pc.tc.Close(); err != nil {
			p.logger.Debug("idle connection already gone", clog.Error(err))
		}
	}

	if len(evict) > 0 {
		p.logger.Info("reaped idle connections",
			clog.String("database", p.name),
			clog.Int("count", len(evict)),
			clog.Duration("max_idle", maxIdle))
	}
	return len(evict)
}

func (p *connPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.numOpen -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, pc := range idle {
		if err := pc.tc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("pool closed", clog.String("database", p.name))
	return xerrors.Combine(errs...)
}
