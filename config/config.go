// Package config 提供多数据库 Redis 连接的配置模型与三级配置解析。
//
// 每个逻辑数据库的有效配置按来源优先级解析，每个名字只解析一次并缓存：
//  1. 配置文件（viper，最高优先级）
//  2. 服务注册中心（etcd，次优先级）
//  3. 旧版扁平配置合成的默认值（兜底）
//
// 基本使用：
//
//	resolver, _ := config.NewResolver(&config.Config{
//	    File:   config.FileConfig{Path: "./databases.yaml", Watch: true},
//	    Legacy: &config.LegacySettings{Host: "127.0.0.1", Port: 6379, Enabled: true},
//	}, config.WithLogger(logger))
//
//	cfg, err := resolver.Resolve(ctx, "main")
package config

import (
	"fmt"
	"time"
)

// KeepAliveConfig TCP keepalive 三元组，用于加快失联对端的探测
type KeepAliveConfig struct {
	Idle     time.Duration `mapstructure:"idle" json:"idle"`         // 空闲多久后开始探测 (默认: 60s)
	Interval time.Duration `mapstructure:"interval" json:"interval"` // 探测间隔 (默认: 10s)
	Count    int           `mapstructure:"count" json:"count"`       // 探测失败次数上限 (默认: 3)
}

// RetryConfig 连接重试策略
//
// 退避时间为 BackoffBase × 2^attempt，封顶 BackoffCap。
type RetryConfig struct {
	MaxRetries  int           `mapstructure:"max_retries" json:"max_retries"`   // 最大重试次数 (默认: 3)
	BackoffBase time.Duration `mapstructure:"backoff_base" json:"backoff_base"` // 退避基数 (默认: 100ms)
	BackoffCap  time.Duration `mapstructure:"backoff_cap" json:"backoff_cap"`   // 退避上限 (默认: 3s)
}

// TLSConfig 可选的 TLS 配置
//
// 任一字段非空即启用 TLS。CertReqs 为空时默认 "required"。
type TLSConfig struct {
	CertFile   string `mapstructure:"cert_file" json:"cert_file"`     // 客户端证书
	KeyFile    string `mapstructure:"key_file" json:"key_file"`       // 客户端私钥
	CAFile     string `mapstructure:"ca_file" json:"ca_file"`         // CA 证书
	CertReqs   string `mapstructure:"cert_reqs" json:"cert_reqs"`     // required|none (默认: required)
	ServerName string `mapstructure:"server_name" json:"server_name"` // SNI 名称
}

// DatabaseConfig 单个逻辑数据库的连接配置
type DatabaseConfig struct {
	// 身份
	Name string `mapstructure:"name" json:"name"` // 逻辑数据库名
	DB   int    `mapstructure:"db" json:"db"`     // Redis db 编号 (默认: 0)

	// 网络目标
	Host     string `mapstructure:"host" json:"host"`         // [必填] 主机地址
	Port     int    `mapstructure:"port" json:"port"`         // 端口 (默认: 6379)
	Password string `mapstructure:"password" json:"password"` // [可选] 认证密码

	// 池大小
	MaxConns int `mapstructure:"max_conns" json:"max_conns"` // 最大连接数 (默认: 10)

	// 超时
	SocketTimeout  time.Duration `mapstructure:"socket_timeout" json:"socket_timeout"`   // 读写超时 (默认: 3s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"` // 建连超时 (默认: 5s)
	PoolTimeout    time.Duration `mapstructure:"pool_timeout" json:"pool_timeout"`       // 阻塞模式等待空闲连接的上限 (默认: 4s)

	// keepalive 调优
	KeepAlive KeepAliveConfig `mapstructure:"keepalive" json:"keepalive"`

	// 重试策略
	Retry RetryConfig `mapstructure:"retry" json:"retry"`

	// 可选 TLS
	TLS *TLSConfig `mapstructure:"tls" json:"tls,omitempty"`
}

// setDefaults 设置默认值
func (c *DatabaseConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.SocketTimeout == 0 {
		c.SocketTimeout = 3 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = 4 * time.Second
	}
	if c.KeepAlive.Idle == 0 {
		c.KeepAlive.Idle = 60 * time.Second
	}
	if c.KeepAlive.Interval == 0 {
		c.KeepAlive.Interval = 10 * time.Second
	}
	if c.KeepAlive.Count == 0 {
		c.KeepAlive.Count = 3
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BackoffBase == 0 {
		c.Retry.BackoffBase = 100 * time.Millisecond
	}
	if c.Retry.BackoffCap == 0 {
		c.Retry.BackoffCap = 3 * time.Second
	}
	if c.TLS != nil && c.TLS.CertReqs == "" {
		c.TLS.CertReqs = "required"
	}
}

// Validate 校验配置并设置默认值
func (c *DatabaseConfig) Validate() error {
	c.setDefaults()
	if c.Name == "" {
		return fmt.Errorf("数据库名不能为空")
	}
	if c.Host == "" {
		return fmt.Errorf("主机地址不能为空")
	}
	if c.Port <= 0 {
		return fmt.Errorf("端口必须大于0")
	}
	if c.DB < 0 {
		return fmt.Errorf("数据库编号不能小于0")
	}
	if c.TLS != nil && c.TLS.CertReqs != "required" && c.TLS.CertReqs != "none" {
		return fmt.Errorf("cert_reqs 必须是 required 或 none")
	}
	return nil
}

// Addr 返回 host:port 形式的连接地址
func (c *DatabaseConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LegacySettings 旧版扁平配置，作为兜底来源
//
// 当某个数据库既不在配置文件也不在注册中心时，用这里的
// host/port/credential 合成一份默认配置。
type LegacySettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

// FileConfig 配置文件来源
type FileConfig struct {
	Path  string `mapstructure:"path"`  // yaml 文件路径，为空则跳过此来源
	Watch bool   `mapstructure:"watch"` // 是否监听文件变更并失效缓存
}

// RegistryConfig 服务注册中心来源
type RegistryConfig struct {
	Prefix  string        `mapstructure:"prefix"`  // 键前缀 (默认: /redisman/databases)
	Timeout time.Duration `mapstructure:"timeout"` // 单次查询超时 (默认: 3s)
}

// Config 解析器配置
type Config struct {
	File     FileConfig      `mapstructure:"file"`
	Registry RegistryConfig  `mapstructure:"registry"`
	Legacy   *LegacySettings `mapstructure:"legacy"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Registry.Prefix == "" {
		c.Registry.Prefix = "/redisman/databases"
	}
	if c.Registry.Timeout == 0 {
		c.Registry.Timeout = 3 * time.Second
	}
}
