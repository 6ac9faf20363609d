package breaker

import (
	"sync"
	"time"

	"github.com/ceyewan/redisman/clog"
)

// circuitBreaker 熔断器实现（非导出）
//
// 锁只保护计数和状态位，持锁期间不做任何 I/O；
// 状态变更回调在锁外触发。
type circuitBreaker struct {
	name     string
	cfg      *Config
	logger   clog.Logger
	onChange StateChangeFunc
	now      func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool
}

func (b *circuitBreaker) Allow() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}

	elapsed := b.now().Sub(b.lastFailure)
	if elapsed <= b.cfg.Timeout {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	// 时间窗口已过，放行探测请求。状态保持 Open，
	// 并发到达的多个探测不做协调，重复探测是可接受的。
	b.logger.Debug("circuit open timeout elapsed, allowing probe",
		clog.Duration("elapsed", elapsed))
	return nil
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	b.failures = 0
	wasOpen := b.open
	b.open = false
	b.mu.Unlock()

	if wasOpen {
		b.logger.Info("circuit breaker closed", clog.String("reason", "probe succeeded"))
		if b.onChange != nil {
			b.onChange(b.name, StateClosed, "probe succeeded")
		}
	}
}

func (b *circuitBreaker) Failure() bool {
	b.mu.Lock()
	b.failures++
	b.lastFailure = b.now()
	opened := !b.open && b.failures >= b.cfg.Threshold
	if opened {
		b.open = true
	}
	failures := b.failures
	b.mu.Unlock()

	if opened {
		b.logger.Warn("circuit breaker opened",
			clog.Int("consecutive_failures", failures),
			clog.Int("threshold", b.cfg.Threshold))
		if b.onChange != nil {
			b.onChange(b.name, StateOpen, "failure threshold reached")
		}
	}
	return opened
}

func (b *circuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return StateOpen
	}
	return StateClosed
}

func (b *circuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := StateClosed
	if b.open {
		state = StateOpen
	}
	return Snapshot{
		State:               state,
		ConsecutiveFailures: b.failures,
		LastFailureTime:     b.lastFailure,
		Threshold:           b.cfg.Threshold,
		Timeout:             b.cfg.Timeout,
	}
}

func (b *circuitBreaker) Reset() {
	b.mu.Lock()
	wasOpen := b.open
	b.failures = 0
	b.open = false
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if wasOpen {
		b.logger.Info("circuit breaker reset", clog.String("reason", "administrative reset"))
		if b.onChange != nil {
			b.onChange(b.name, StateClosed, "administrative reset")
		}
	}
}
