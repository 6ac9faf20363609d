package config

import (
	"github.com/ceyewan/redisman/clog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type options struct {
	logger clog.Logger
	etcd   *clientv3.Client
}

// Option 配置解析器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// WithEtcdClient 注入 etcd 客户端，启用服务注册中心来源
//
// 客户端归调用方所有，解析器不会关闭它。
// 不注入时注册中心来源被跳过。
func WithEtcdClient(client *clientv3.Client) Option {
	return func(o *options) {
		o.etcd = client
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
