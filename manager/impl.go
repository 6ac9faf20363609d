package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/redisman/breaker"
	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/config"
	"github.com/ceyewan/redisman/metrics"
	"github.com/ceyewan/redisman/pool"
	"github.com/ceyewan/redisman/stats"
	"github.com/ceyewan/redisman/xerrors"
)

// dbState 单个数据库的全部运行时状态
//
// 两个变体各有自己的池，熔断器和统计按数据库名共享。
// buildMu 只保护建池冷路径；池建成后的热路径不碰这把锁。
type dbState struct {
	name    string
	breaker breaker.Breaker
	stats   *stats.DatabaseStats

	buildMu sync.Mutex
	pools   [modeCount]pool.Pool
}

// pool 返回指定变体的池，未建时为 nil
func (s *dbState) pool(mode Mode) pool.Pool {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.pools[mode]
}

// takePools 摘下全部池并清空槽位，由调用方负责关闭
func (s *dbState) takePools() []pool.Pool {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	var taken []pool.Pool
	for i, p := range s.pools {
		if p != nil {
			taken = append(taken, p)
			s.pools[i] = nil
		}
	}
	return taken
}

// manager 实现 Manager 接口
type manager struct {
	id       string
	cfg      *Config
	logger   clog.Logger
	hook     metrics.Hook
	resolver config.Resolver
	started  time.Time

	// buildPool 池构建函数，测试中可替换
	buildPool func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error)

	mu     sync.RWMutex
	dbs    map[string]*dbState
	closed bool

	reapCancel context.CancelFunc
	reapWG     sync.WaitGroup
}

func newManager(cfg *Config, opts ...Option) (*manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	resolver := opt.resolver
	if resolver == nil {
		var err error
		resolver, err = config.NewResolver(&cfg.Sources,
			config.WithLogger(opt.logger),
			config.WithEtcdClient(opt.etcd))
		if err != nil {
			return nil, xerrors.Wrap(err, "manager: build resolver")
		}
	}

	m := &manager{
		id:       uuid.NewString(),
		cfg:      cfg,
		logger:   opt.logger,
		hook:     opt.hook,
		resolver: resolver,
		started:  time.Now(),
		dbs:      make(map[string]*dbState),
	}
	m.buildPool = m.defaultBuildPool

	reapCtx, cancel := context.WithCancel(context.Background())
	m.reapCancel = cancel
	m.reapWG.Add(1)
	go m.reapLoop(reapCtx)

	m.logger.Info("connection manager started",
		clog.String("instance", m.id),
		clog.Bool("enabled", cfg.Enabled),
		clog.Duration("reap_interval", cfg.ReapInterval),
		clog.Duration("max_idle_time", cfg.MaxIdleTime))

	return m, nil
}

// GetClient 实现 Manager 接口
func (m *manager) GetClient(ctx context.Context, database string, mode Mode) (pool.Conn, error) {
	if !m.cfg.Enabled {
		return nil, ErrDisabled
	}

	st, err := m.state(database)
	if err != nil {
		return nil, err
	}

	// 熔断检查：打开且仍在窗口内时不发起任何传输层操作
	if err := st.breaker.Allow(); err != nil {
		return nil, xerrors.Wrapf(ErrCircuitOpen, "database %q: %v", database, err)
	}

	p, err := m.poolFor(ctx, st, mode)
	if err != nil {
		m.recordFailure(ctx, st)
		return nil, err
	}

	start := time.Now()
	conn, err := p.Get(ctx)
	if err == nil {
		// 存活探测，失败的连接销毁而不是归还
		if perr := conn.Ping(ctx); perr != nil {
			_ = conn.Close()
			err = perr
		}
	}
	if err != nil {
		m.recordFailure(ctx, st)
		return nil, xerrors.Wrapf(ErrConnection, "database %q: %v", database, err)
	}

	m.recordSuccess(ctx, st, time.Since(start))
	return conn, nil
}

// state 返回数据库的运行时状态记录，没有则创建
//
// 创建只是纯内存结构（熔断器 + 统计），不做任何 I/O。
func (m *manager) state(database string) (*dbState, error) {
	m.mu.RLock()
	st, ok := m.dbs[database]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, xerrors.Wrap(ErrConnection, "manager: closed")
	}
	if ok {
		return st, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, xerrors.Wrap(ErrConnection, "manager: closed")
	}
	if st, ok := m.dbs[database]; ok {
		return st, nil
	}

	brk, err := breaker.New(database, &m.cfg.Breaker,
		breaker.WithLogger(m.logger),
		breaker.WithOnStateChange(m.onBreakerChange))
	if err != nil {
		return nil, xerrors.Wrapf(err, "manager: breaker for %q", database)
	}

	st = &dbState{
		name:    database,
		breaker: brk,
		stats:   stats.NewDatabase(database),
	}
	m.dbs[database] = st
	return st, nil
}

// poolFor 返回指定变体的池，必要时懒构建
//
// 冷路径在 dbState.buildMu 下做二次检查，并发首次访问只构建
// 一个池，其余调用方在锁上等待后直接观察到已注册的池。
// 就绪等待也在锁内完成：池只有在就绪后才对其他调用方可见。
func (m *manager) poolFor(ctx context.Context, st *dbState, mode Mode) (pool.Pool, error) {
	st.buildMu.Lock()
	defer st.buildMu.Unlock()

	if p := st.pools[mode]; p != nil {
		return p, nil
	}

	dbCfg, err := m.resolver.Resolve(ctx, st.name)
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "database %q: resolve config: %v", st.name, err)
	}

	p, err := m.buildPool(ctx, dbCfg, mode)
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "database %q: build %s pool: %v", st.name, mode, err)
	}

	ready, err := pool.WaitReady(ctx, p, m.cfg.ReadyMaxWait, m.cfg.ReadyPollInterval)
	if err != nil {
		_ = p.Close()
		return nil, xerrors.Wrapf(ErrConnection, "database %q: readiness probe: %v", st.name, err)
	}
	if !ready {
		_ = p.Close()
		return nil, xerrors.Wrapf(ErrReadinessTimeout, "database %q: backend not ready within %s", st.name, m.cfg.ReadyMaxWait)
	}

	st.pools[mode] = p
	m.logger.Info("pool registered",
		clog.String("database", st.name),
		clog.String("mode", mode.String()))
	return p, nil
}

// defaultBuildPool 根据变体调用对应的池构建器
func (m *manager) defaultBuildPool(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
	if mode == ModeNonBlocking {
		return pool.NewNonBlocking(ctx, dbCfg, pool.WithLogger(m.logger))
	}
	return pool.NewBlocking(dbCfg, pool.WithLogger(m.logger))
}

// recordSuccess 成功路径的状态更新：熔断清零、统计、指标回调
func (m *manager) recordSuccess(ctx context.Context, st *dbState, elapsed time.Duration) {
	st.breaker.Success()
	st.stats.RecordSuccess(elapsed)
	m.safeHook(func() {
		m.hook.RecordOperation(ctx, st.name, "get_client", true)
	})
}

// recordFailure 失败路径的状态更新：熔断计数、统计、指标回调
func (m *manager) recordFailure(ctx context.Context, st *dbState) {
	st.breaker.Failure()
	st.stats.RecordFailure()
	m.safeHook(func() {
		m.hook.RecordOperation(ctx, st.name, "get_client", false)
	})
}

// onBreakerChange 把熔断状态变更转发给指标回调
func (m *manager) onBreakerChange(name string, to breaker.State, reason string) {
	event := metrics.EventClosed
	if to == breaker.StateOpen {
		event = metrics.EventOpened
	}
	m.safeHook(func() {
		m.hook.RecordBreakerEvent(context.Background(), name, event, reason)
	})
}

// safeHook 以尽力而为方式调用指标回调，panic 只记日志不传播
func (m *manager) safeHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("metrics hook panicked", clog.Any("panic", r))
		}
	}()
	fn()
}

// Health 实现 Manager 接口
func (m *manager) Health(ctx context.Context) []DatabaseHealth {
	m.mu.RLock()
	states := make([]*dbState, 0, len(m.dbs))
	for _, st := range m.dbs {
		states = append(states, st)
	}
	m.mu.RUnlock()

	report := make([]DatabaseHealth, 0, len(states))
	for _, st := range states {
		brk := st.breaker.Snapshot()
		snap := st.stats.Snapshot()
		report = append(report, DatabaseHealth{
			Database: st.name,
			Status:   classify(brk, snap),
			Breaker:  brk,
			Stats:    snap,
		})
	}
	return report
}

// classify 根据熔断状态和最近一次操作结果给出健康档位
func classify(brk breaker.Snapshot, snap stats.DatabaseSnapshot) HealthStatus {
	if brk.State == breaker.StateOpen {
		return StatusFailed
	}
	if snap.HasAttempt && !snap.LastAttemptOK {
		return StatusDegraded
	}
	return StatusHealthy
}

// Stats 实现 Manager 接口
func (m *manager) Stats() ManagerStats {
	report := m.Health(context.Background())

	out := ManagerStats{
		TotalDatabases: len(report),
		Uptime:         time.Since(m.started),
	}

	snaps := make([]stats.DatabaseSnapshot, 0, len(report))
	for _, h := range report {
		snaps = append(snaps, h.Stats)
		switch h.Status {
		case StatusFailed:
			out.FailedDatabases++
		case StatusDegraded:
			out.DegradedDatabases++
		default:
			out.HealthyDatabases++
		}
	}

	out.Databases = snaps
	out.OverallSuccessRate = stats.OverallSuccessRate(snaps)
	return out
}

// PoolStats 实现 Manager 接口
func (m *manager) PoolStats(database string, mode Mode) (pool.Statistics, bool) {
	m.mu.RLock()
	st, ok := m.dbs[database]
	m.mu.RUnlock()
	if !ok {
		return pool.Statistics{}, false
	}

	p := st.pool(mode)
	if p == nil {
		return pool.Statistics{}, false
	}
	return p.Stats(), true
}

// ResetBreaker 实现 Manager 接口
func (m *manager) ResetBreaker(database string) bool {
	m.mu.RLock()
	st, ok := m.dbs[database]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	st.breaker.Reset()
	m.logger.Info("breaker reset", clog.String("database", database))
	return true
}

// Recreate 实现 Manager 接口
func (m *manager) Recreate(ctx context.Context, database string) error {
	m.mu.RLock()
	st, ok := m.dbs[database]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	var merr error
	for _, p := range st.takePools() {
		merr = xerrors.Combine(merr, p.Close())
	}
	m.resolver.Invalidate(database)

	m.logger.Info("pools recreated", clog.String("database", database))
	return merr
}

// CloseAll 实现 Manager 接口
func (m *manager) CloseAll() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	dbs := m.dbs
	m.dbs = make(map[string]*dbState)
	m.mu.Unlock()

	// 先停回收任务再动池
	m.reapCancel()
	m.reapWG.Wait()

	// 非阻塞池先关，阻塞池后关
	var merr error
	for _, mode := range []Mode{ModeNonBlocking, ModeBlocking} {
		for _, st := range dbs {
			st.buildMu.Lock()
			p := st.pools[mode]
			st.pools[mode] = nil
			st.buildMu.Unlock()
			if p != nil {
				merr = xerrors.Combine(merr, p.Close())
			}
		}
	}

	m.logger.Info("connection manager closed", clog.String("instance", m.id))
	return merr
}
