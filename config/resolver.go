package config

import (
	"context"
	"sync"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/xerrors"
)

// Resolver 按来源优先级解析数据库配置
//
// 同一个名字只解析一次，结果缓存直到显式失效
// （文件变更或 Invalidate 调用）。
type Resolver interface {
	// Resolve 返回指定数据库的有效配置
	//
	// 返回错误：
	//   - ErrNotFound: 三个来源都没有该数据库
	//   - ErrSource: 来源不可用（注册中心查询失败等）
	Resolve(ctx context.Context, name string) (*DatabaseConfig, error)

	// Invalidate 使指定数据库的缓存条目失效；name 为空时清空全部
	Invalidate(name string)
}

// resolver 实现 Resolver 接口
type resolver struct {
	cfg    *Config
	logger clog.Logger

	file     *fileSource     // 可能为 nil
	registry *registrySource // 可能为 nil
	legacy   *LegacySettings // 可能为 nil

	mu    sync.RWMutex
	cache map[string]*DatabaseConfig
}

// NewResolver 创建配置解析器
func NewResolver(cfg *Config, opts ...Option) (Resolver, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	r := &resolver{
		cfg:    cfg,
		logger: opt.logger,
		legacy: cfg.Legacy,
		cache:  make(map[string]*DatabaseConfig),
	}

	if cfg.File.Path != "" {
		fs, err := newFileSource(cfg.File, opt.logger, r.Invalidate)
		if err != nil {
			return nil, xerrors.Wrapf(err, "config: load file %s", cfg.File.Path)
		}
		r.file = fs
	}

	if opt.etcd != nil {
		r.registry = newRegistrySource(cfg.Registry, opt.etcd, opt.logger)
	}

	return r, nil
}

// Resolve 按 文件 > 注册中心 > 旧版默认 的优先级解析
func (r *resolver) Resolve(ctx context.Context, name string) (*DatabaseConfig, error) {
	if name == "" {
		return nil, xerrors.Wrap(ErrNotFound, "config: empty database name")
	}

	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	cfg, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// 并发解析同一个名字时先到先得，保证返回同一份配置
	if prev, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return prev, nil
	}
	r.cache[name] = cfg
	r.mu.Unlock()

	r.logger.Info("database config resolved",
		clog.String("database", name),
		clog.String("addr", cfg.Addr()),
		clog.Int("db", cfg.DB))

	return cfg, nil
}

func (r *resolver) resolve(ctx context.Context, name string) (*DatabaseConfig, error) {
	// 1. 配置文件（最高优先级）
	if r.file != nil {
		if cfg, ok := r.file.lookup(name); ok {
			cfg.Name = name
			if err := cfg.Validate(); err != nil {
				return nil, xerrors.Wrapf(err, "config: file entry for %q invalid", name)
			}
			return cfg, nil
		}
	}

	// 2. 服务注册中心
	if r.registry != nil {
		cfg, found, err := r.registry.lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		if found {
			cfg.Name = name
			if err := cfg.Validate(); err != nil {
				return nil, xerrors.Wrapf(err, "config: registry entry for %q invalid", name)
			}
			return cfg, nil
		}
	}

	// 3. 旧版扁平配置合成默认值
	if r.legacy != nil && r.legacy.Host != "" {
		cfg := &DatabaseConfig{
			Name:     name,
			Host:     r.legacy.Host,
			Port:     r.legacy.Port,
			Password: r.legacy.Password,
		}
		if err := cfg.Validate(); err != nil {
			return nil, xerrors.Wrapf(err, "config: legacy defaults for %q invalid", name)
		}
		r.logger.Warn("database config synthesized from legacy settings",
			clog.String("database", name))
		return cfg, nil
	}

	return nil, xerrors.Wrapf(ErrNotFound, "config: database %q", name)
}

// Invalidate 使缓存条目失效
func (r *resolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		r.cache = make(map[string]*DatabaseConfig)
		return
	}
	delete(r.cache, name)
}
