package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/redisman/xerrors"
)

// stubPool 按脚本返回 Ping 结果的测试池
type stubPool struct {
	mu      sync.Mutex
	pingErr []error
	pings   int
}

func (s *stubPool) Get(ctx context.Context) (Conn, error) { return nil, ErrClosed }

func (s *stubPool) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.pings < len(s.pingErr) {
		err = s.pingErr[s.pings]
	}
	s.pings++
	return err
}

func (s *stubPool) Stats() Statistics              { return Statistics{} }
func (s *stubPool) ReapIdle(max time.Duration) int { return 0 }
func (s *stubPool) Close() error                   { return nil }

var errLoading = xerrors.New("LOADING Redis is loading the dataset in memory")

func TestIsLoading(t *testing.T) {
	assert.True(t, IsLoading(errLoading))
	assert.True(t, IsLoading(xerrors.New("loading the dataset")))
	assert.False(t, IsLoading(nil))
	assert.False(t, IsLoading(xerrors.New("connection refused")))
}

// TestWaitReadyRecoversFromLoading 测试 LOADING 期间持续轮询直到就绪
func TestWaitReadyRecoversFromLoading(t *testing.T) {
	p := &stubPool{pingErr: []error{errLoading, errLoading, errLoading, nil}}

	ready, err := WaitReady(context.Background(), p, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 4, p.pings)
}

// TestWaitReadyPropagatesOtherErrors 测试非 LOADING 错误立即返回
func TestWaitReadyPropagatesOtherErrors(t *testing.T) {
	boom := xerrors.New("connection refused")
	p := &stubPool{pingErr: []error{boom}}

	ready, err := WaitReady(context.Background(), p, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ready)
	assert.Equal(t, 1, p.pings)
}

// TestWaitReadyBudgetExhausted 测试等待预算耗尽返回 (false, nil)
func TestWaitReadyBudgetExhausted(t *testing.T) {
	p := &stubPool{pingErr: []error{errLoading, errLoading, errLoading, errLoading, errLoading}}

	ready, err := WaitReady(context.Background(), p, 30*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ready)
}

// TestWaitReadyContextCancel 测试上下文取消中断等待
func TestWaitReadyContextCancel(t *testing.T) {
	p := &stubPool{pingErr: []error{errLoading, errLoading, errLoading, errLoading}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	ready, err := WaitReady(ctx, p, 10*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ready)
}
