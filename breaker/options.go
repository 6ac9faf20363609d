package breaker

import (
	"time"

	"github.com/ceyewan/redisman/clog"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   clog.Logger
	onChange StateChangeFunc
	now      func() time.Time
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithOnStateChange 设置状态变更回调
//
// 回调在熔断器锁外调用，可以安全地做日志、指标上报等操作。
func WithOnStateChange(fn StateChangeFunc) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithClock 注入时钟函数，仅用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.now == nil {
		o.now = time.Now
	}
}
