package manager

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/redisman/breaker"
	"github.com/ceyewan/redisman/config"
	"github.com/ceyewan/redisman/pool"
	"github.com/ceyewan/redisman/testkit"
	"github.com/ceyewan/redisman/xerrors"
)

// stubResolver 固定返回一份配置的解析器
type stubResolver struct {
	cfg         *config.DatabaseConfig
	err         error
	invalidated []string
	mu          sync.Mutex
}

func (r *stubResolver) Resolve(ctx context.Context, name string) (*config.DatabaseConfig, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.cfg, nil
}

func (r *stubResolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, name)
}

// fakeManagedConn 测试用连接句柄
type fakeManagedConn struct {
	pingErr error
	closed  atomic.Bool
}

func (c *fakeManagedConn) Do(ctx context.Context, args ...any) (any, error) { return "OK", nil }
func (c *fakeManagedConn) Ping(ctx context.Context) error                   { return c.pingErr }

func (c *fakeManagedConn) Pipeline(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	return nil, nil
}
func (c *fakeManagedConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakePool 测试用池：Ping 按脚本返回，Get 返回新的 fakeManagedConn
type fakePool struct {
	mu       sync.Mutex
	pingErrs []error
	pings    int
	connErr  error
	closed   bool
}

func (p *fakePool) Get(ctx context.Context) (pool.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connErr != nil {
		return nil, p.connErr
	}
	return &fakeManagedConn{}, nil
}

func (p *fakePool) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.pings < len(p.pingErrs) {
		err = p.pingErrs[p.pings]
	}
	p.pings++
	return err
}

func (p *fakePool) Stats() pool.Statistics         { return pool.Statistics{MaxSize: 1} }
func (p *fakePool) ReapIdle(max time.Duration) int { return 0 }
func (p *fakePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testConfig() *Config {
	return &Config{
		Enabled:           true,
		Breaker:           breaker.Config{Threshold: 5, Timeout: 60 * time.Second},
		ReadyMaxWait:      100 * time.Millisecond,
		ReadyPollInterval: 10 * time.Millisecond,
	}
}

func newTestManager(t *testing.T, cfg *Config, build func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error)) *manager {
	t.Helper()
	m, err := newManager(cfg, WithResolver(&stubResolver{cfg: &config.DatabaseConfig{Name: "main", Host: "127.0.0.1", Port: 6379}}))
	require.NoError(t, err)
	if build != nil {
		m.buildPool = build
	}
	t.Cleanup(func() { _ = m.CloseAll() })
	return m
}

// TestDisabled 测试全局开关关闭时立即失败
func TestDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	m := newTestManager(t, cfg, nil)

	_, err := m.GetClient(context.Background(), "main", ModeBlocking)
	assert.ErrorIs(t, err, ErrDisabled)
}

// TestConcurrentFirstAccessBuildsOnce 测试并发首次访问只构建一个池
func TestConcurrentFirstAccessBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond) // 放大竞争窗口
		return &fakePool{}, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := m.GetClient(context.Background(), "main", ModeBlocking)
			errs[i] = err
			if err == nil {
				conn.Close()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), builds.Load())
}

// TestBreakerOpensAtThreshold 测试连续失败达到阈值后熔断打开
func TestBreakerOpensAtThreshold(t *testing.T) {
	var builds atomic.Int32
	boom := xerrors.New("connection refused")
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		builds.Add(1)
		return nil, boom
	})
	ctx := context.Background()

	// 阈值内的失败都会尝试传输层
	for i := 0; i < 5; i++ {
		_, err := m.GetClient(ctx, "main", ModeBlocking)
		assert.ErrorIs(t, err, ErrConnection)
	}
	require.Equal(t, int32(5), builds.Load())

	// 熔断打开后不再发起任何传输层操作
	for i := 0; i < 3; i++ {
		_, err := m.GetClient(ctx, "main", ModeBlocking)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, int32(5), builds.Load(), "no transport attempts while circuit open")

	report := m.Health(ctx)
	require.Len(t, report, 1)
	assert.Equal(t, StatusFailed, report[0].Status)
	assert.Equal(t, breaker.StateOpen, report[0].Breaker.State)
}

// TestReadinessTimeoutAbortsRegistration 测试就绪超时中止池注册并计入熔断
func TestReadinessTimeoutAbortsRegistration(t *testing.T) {
	loading := xerrors.New("LOADING Redis is loading the dataset in memory")
	fp := &fakePool{pingErrs: []error{loading, loading, loading, loading, loading,
		loading, loading, loading, loading, loading, loading, loading}}
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return fp, nil
	})
	ctx := context.Background()

	_, err := m.GetClient(ctx, "main", ModeBlocking)
	assert.ErrorIs(t, err, ErrReadinessTimeout)

	_, ok := m.PoolStats("main", ModeBlocking)
	assert.False(t, ok, "pool must not be registered on readiness timeout")
	assert.True(t, fp.closed)

	report := m.Health(ctx)
	require.Len(t, report, 1)
	assert.Equal(t, 1, report[0].Breaker.ConsecutiveFailures)
}

// TestTransientLoadingRecovered 测试 LOADING 恢复后建池成功且不计熔断失败
func TestTransientLoadingRecovered(t *testing.T) {
	loading := xerrors.New("LOADING Redis is loading the dataset in memory")
	fp := &fakePool{pingErrs: []error{loading, loading, loading, nil}}
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return fp, nil
	})
	ctx := context.Background()

	conn, err := m.GetClient(ctx, "main", ModeNonBlocking)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	report := m.Health(ctx)
	require.Len(t, report, 1)
	assert.Equal(t, StatusHealthy, report[0].Status)
	assert.Equal(t, 0, report[0].Breaker.ConsecutiveFailures)
}

// TestModesKeepSeparatePools 测试两个变体各自持有独立的池
func TestModesKeepSeparatePools(t *testing.T) {
	var builds atomic.Int32
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		builds.Add(1)
		return &fakePool{}, nil
	})
	ctx := context.Background()

	c1, err := m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	c1.Close()

	c2, err := m.GetClient(ctx, "main", ModeNonBlocking)
	require.NoError(t, err)
	c2.Close()

	assert.Equal(t, int32(2), builds.Load())

	_, ok := m.PoolStats("main", ModeBlocking)
	assert.True(t, ok)
	_, ok = m.PoolStats("main", ModeNonBlocking)
	assert.True(t, ok)
}

// TestResetBreakerRestoresService 测试管理性复位后恢复放行
func TestResetBreakerRestoresService(t *testing.T) {
	fail := atomic.Bool{}
	fail.Store(true)
	boom := xerrors.New("connection refused")
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		if fail.Load() {
			return nil, boom
		}
		return &fakePool{}, nil
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = m.GetClient(ctx, "main", ModeBlocking)
	}
	_, err := m.GetClient(ctx, "main", ModeBlocking)
	require.ErrorIs(t, err, ErrCircuitOpen)

	fail.Store(false)
	require.True(t, m.ResetBreaker("main"))
	assert.False(t, m.ResetBreaker("unknown"))

	conn, err := m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	conn.Close()
}

// TestRecreateClosesPoolsAndInvalidatesConfig 测试强制重建
func TestRecreateClosesPoolsAndInvalidatesConfig(t *testing.T) {
	resolver := &stubResolver{cfg: &config.DatabaseConfig{Name: "main", Host: "127.0.0.1", Port: 6379}}
	m, err := newManager(testConfig(), WithResolver(resolver))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseAll() })

	var pools []*fakePool
	var mu sync.Mutex
	m.buildPool = func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		fp := &fakePool{}
		mu.Lock()
		pools = append(pools, fp)
		mu.Unlock()
		return fp, nil
	}
	ctx := context.Background()

	conn, err := m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, m.Recreate(ctx, "main"))
	assert.True(t, pools[0].closed)
	assert.Equal(t, []string{"main"}, resolver.invalidated)

	_, ok := m.PoolStats("main", ModeBlocking)
	assert.False(t, ok)

	// 下次访问重建
	conn, err = m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	conn.Close()
	assert.Len(t, pools, 2)
}

// TestCloseAllIdempotent 测试重复关停无错误且注册表清空
func TestCloseAllIdempotent(t *testing.T) {
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return &fakePool{}, nil
	})
	ctx := context.Background()

	conn, err := m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, m.CloseAll())
	require.NoError(t, m.CloseAll())

	assert.Empty(t, m.Health(ctx))
	_, err = m.GetClient(ctx, "main", ModeBlocking)
	assert.Error(t, err)
}

// TestCloseAllBeforeUse 测试从未使用过的管理器关停安全
func TestCloseAllBeforeUse(t *testing.T) {
	m, err := newManager(testConfig(), WithResolver(&stubResolver{}))
	require.NoError(t, err)

	require.NoError(t, m.CloseAll())
	require.NoError(t, m.CloseAll())
}

// recordingHook 记录回调的 Hook
type recordingHook struct {
	mu     sync.Mutex
	ops    []string
	events []string
}

func (h *recordingHook) RecordOperation(ctx context.Context, database, operation string, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, database+":"+operation+":"+strconv.FormatBool(success))
}

func (h *recordingHook) RecordBreakerEvent(ctx context.Context, database, event, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, database+":"+event)
}

// panicHook 总是 panic 的 Hook
type panicHook struct{}

func (h *panicHook) RecordOperation(ctx context.Context, database, operation string, success bool) {
	panic("hook exploded")
}
func (h *panicHook) RecordBreakerEvent(ctx context.Context, database, event, reason string) {
	panic("hook exploded")
}

// TestHookReceivesOperationsAndTransitions 测试指标回调收到操作与熔断事件
func TestHookReceivesOperationsAndTransitions(t *testing.T) {
	hook := &recordingHook{}
	boom := xerrors.New("connection refused")
	m, err := newManager(testConfig(),
		WithResolver(&stubResolver{cfg: &config.DatabaseConfig{Name: "main", Host: "127.0.0.1", Port: 6379}}),
		WithHook(hook))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseAll() })
	m.buildPool = func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return nil, boom
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = m.GetClient(ctx, "main", ModeBlocking)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.ops, 5)
	assert.Equal(t, "main:get_client:false", hook.ops[0])
	assert.Equal(t, []string{"main:opened"}, hook.events)
}

// TestHookPanicSwallowed 测试回调 panic 不影响主路径
func TestHookPanicSwallowed(t *testing.T) {
	m, err := newManager(testConfig(),
		WithResolver(&stubResolver{cfg: &config.DatabaseConfig{Name: "main", Host: "127.0.0.1", Port: 6379}}),
		WithHook(&panicHook{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseAll() })
	m.buildPool = func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return &fakePool{}, nil
	}

	conn, err := m.GetClient(context.Background(), "main", ModeBlocking)
	require.NoError(t, err)
	conn.Close()
}

// TestStatsRollup 测试全局汇总统计
func TestStatsRollup(t *testing.T) {
	m := newTestManager(t, testConfig(), func(ctx context.Context, dbCfg *config.DatabaseConfig, mode Mode) (pool.Pool, error) {
		return &fakePool{}, nil
	})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		conn, err := m.GetClient(ctx, "main", ModeBlocking)
		require.NoError(t, err)
		conn.Close()
	}

	st := m.Stats()
	assert.Equal(t, 1, st.TotalDatabases)
	assert.Equal(t, 1, st.HealthyDatabases)
	assert.Equal(t, 0, st.FailedDatabases)
	assert.Equal(t, 100.0, st.OverallSuccessRate)
	assert.Greater(t, st.Uptime, time.Duration(0))
}

// TestLegacyFallbackEndToEnd 测试三来源都没有时回落到旧版默认并真实连接
func TestLegacyFallbackEndToEnd(t *testing.T) {
	mr := testkit.StartRedis(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Sources = config.Config{
		Legacy: &config.LegacySettings{Host: mr.Host(), Port: port, Enabled: true},
	}

	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseAll() })
	ctx := context.Background()

	conn, err := m.GetClient(ctx, "main", ModeBlocking)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Do(ctx, "SET", "greeting", "hello")
	require.NoError(t, err)

	val, err := conn.Do(ctx, "GET", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", val)

	st, ok := m.PoolStats("main", ModeBlocking)
	require.True(t, ok)
	assert.Equal(t, 1, st.InUse)
}
