// Package breaker 提供按数据库粒度的两态熔断器。
//
// 状态机只有 Closed 和 Open 两个状态（没有显式的 HalfOpen）：
//   - Closed → Open：连续失败次数达到阈值
//   - Open → Closed：熔断时长过后，下一次请求作为探测放行，
//     探测成功即关闭；探测失败则保持 Open 并刷新计时窗口
//
// 超时后同时到达的并发探测不做协调，重复探测是允许的。
//
// 基本使用：
//
//	brk, _ := breaker.New("main", &breaker.Config{
//	    Threshold: 5,
//	    Timeout:   60 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	if err := brk.Allow(); err != nil {
//	    return err // 熔断中，快速失败
//	}
//	if err := doRequest(); err != nil {
//	    brk.Failure()
//	} else {
//	    brk.Success()
//	}
package breaker

import (
	"time"

	"github.com/ceyewan/redisman/clog"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态，请求正常放行
	StateClosed State = iota

	// StateOpen 打开状态，请求被快速拒绝
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// StateChangeFunc 状态变更回调
//
// 回调在锁外调用，允许做日志、指标等慢操作。
type StateChangeFunc func(name string, to State, reason string)

// Breaker 两态熔断器接口
type Breaker interface {
	// Allow 判断请求是否放行
	//
	// 熔断打开且仍在时间窗口内时返回 ErrOpen，不发起任何传输层
	// 操作；窗口过后放行探测请求（状态保持 Open，由后续的
	// Success/Failure 决定走向）。
	Allow() error

	// Success 记录一次成功：连续失败计数清零，打开状态下关闭熔断
	Success()

	// Failure 记录一次失败：计数加一并刷新最后失败时间，
	// 达到阈值时打开熔断。返回本次调用是否触发了 Closed → Open
	Failure() bool

	// State 返回当前状态
	State() State

	// Snapshot 返回状态快照，用于健康查询
	Snapshot() Snapshot

	// Reset 管理性复位：清零计数并关闭熔断
	Reset()
}

// Snapshot 熔断器状态的一致性快照
type Snapshot struct {
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailureTime     time.Time     `json:"last_failure_time"`
	Threshold           int           `json:"threshold"`
	Timeout             time.Duration `json:"timeout"`
}

// Config 熔断器配置
type Config struct {
	// Threshold 触发熔断的连续失败次数 (默认: 5)
	Threshold int `mapstructure:"threshold"`

	// Timeout 熔断打开后拒绝请求的时长 (默认: 60s)
	Timeout time.Duration `mapstructure:"timeout"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// New 创建熔断器实例
//
// name 用于日志和状态变更回调的标识，通常是逻辑数据库名。
func New(name string, cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	b := &circuitBreaker{
		name:     name,
		cfg:      cfg,
		logger:   opt.logger.With(clog.String("breaker", name)),
		onChange: opt.onChange,
		now:      opt.now,
	}

	return b, nil
}
