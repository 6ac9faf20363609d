package manager

import (
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/config"
	"github.com/ceyewan/redisman/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   clog.Logger
	hook     metrics.Hook
	resolver config.Resolver
	etcd     *clientv3.Client
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "manager"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("manager")
		}
	}
}

// WithHook 设置指标回调，传入 nil 时使用 metrics.NopHook()
//
// 回调以尽力而为方式调用，panic 会被吞掉并记录日志，
// 永远不会影响主路径。
func WithHook(hook metrics.Hook) Option {
	return func(o *options) {
		if hook == nil {
			o.hook = metrics.NopHook()
		} else {
			o.hook = hook
		}
	}
}

// WithResolver 注入预构建的配置解析器
//
// 不提供时管理器根据 Config.Sources 自行构建。
func WithResolver(r config.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithEtcdClient 注入 etcd 客户端，启用注册中心配置来源
func WithEtcdClient(client *clientv3.Client) Option {
	return func(o *options) {
		o.etcd = client
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.hook == nil {
		o.hook = metrics.NopHook()
	}
}
