// Package manager 提供连接管理层的统一门面。
//
// Manager 按逻辑数据库组织连接池（阻塞/非阻塞两套）、熔断器和
// 运行统计，是调用方使用本库的唯一入口。每次取连接都经过
// 熔断检查、懒初始化（配置解析 + 建池 + 就绪等待）和存活探测，
// 失败按数据库粒度隔离，不会相互影响。
//
// 基本使用：
//
//	mgr, err := manager.New(&manager.Config{
//	    Enabled: true,
//	    Sources: config.Config{
//	        File: config.FileConfig{Path: "databases.yaml"},
//	    },
//	}, manager.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mgr.CloseAll()
//
//	conn, err := mgr.GetClient(ctx, "main", manager.ModeBlocking)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
package manager

import (
	"context"
	"time"

	"github.com/ceyewan/redisman/breaker"
	"github.com/ceyewan/redisman/config"
	"github.com/ceyewan/redisman/pool"
	"github.com/ceyewan/redisman/stats"
)

// Mode 连接池变体
type Mode int

const (
	// ModeBlocking 阻塞池：无空闲槽位时等待，重试嵌入传输层
	ModeBlocking Mode = iota

	// ModeNonBlocking 非阻塞池：无空闲槽位时立即失败，构建时完成首次连接
	ModeNonBlocking
)

// modeCount 变体数量，池注册表按此定长
const modeCount = 2

// String 返回变体的字符串表示
func (m Mode) String() string {
	switch m {
	case ModeBlocking:
		return "blocking"
	case ModeNonBlocking:
		return "nonblocking"
	default:
		return "unknown"
	}
}

// Manager 连接管理门面接口
type Manager interface {
	// GetClient 返回绑定到指定数据库连接池的一条连接
	//
	// 完整路径：全局开关检查 → 熔断检查 → 懒建池（配置解析、
	// 池构建、就绪等待，按数据库加锁且二次检查）→ 存活探测 →
	// 统计与熔断状态更新。调用方用完必须 Close 归还连接。
	//
	// 返回错误：
	//   - ErrDisabled: 功能全局关闭
	//   - ErrCircuitOpen: 熔断打开且仍在时间窗口内
	//   - ErrReadinessTimeout: 就绪等待预算耗尽，池未注册
	//   - ErrConnection: 其余传输层失败（包装底层原因）
	GetClient(ctx context.Context, database string, mode Mode) (pool.Conn, error)

	// Health 返回所有已接触数据库的健康报告
	Health(ctx context.Context) []DatabaseHealth

	// Stats 返回全局汇总统计
	Stats() ManagerStats

	// PoolStats 返回指定数据库指定变体的池快照；池未建时 ok 为 false
	PoolStats(database string, mode Mode) (pool.Statistics, bool)

	// ResetBreaker 管理性复位指定数据库的熔断器；数据库未知时返回 false
	ResetBreaker(database string) bool

	// Recreate 强制重建指定数据库的连接池
	//
	// 关闭该数据库两个变体的现有池并使配置缓存失效，下次访问
	// 按新配置重建。熔断器和统计保留。
	Recreate(ctx context.Context, database string) error

	// CloseAll 关停管理器：停止空闲回收、关闭全部连接池并清空注册表
	//
	// 幂等，重复调用无错误；从未使用过的管理器调用也安全。
	CloseAll() error
}

// HealthStatus 单个数据库的健康档位
type HealthStatus string

const (
	// StatusHealthy 最近一次操作成功（或尚无任何操作）
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded 最近一次操作失败但熔断仍然关闭
	StatusDegraded HealthStatus = "degraded"

	// StatusFailed 熔断已打开
	StatusFailed HealthStatus = "failed"
)

// DatabaseHealth 单个数据库的健康报告
type DatabaseHealth struct {
	Database string                 `json:"database"`
	Status   HealthStatus           `json:"status"`
	Breaker  breaker.Snapshot       `json:"breaker"`
	Stats    stats.DatabaseSnapshot `json:"stats"`
}

// ManagerStats 管理器级别的汇总统计
type ManagerStats struct {
	TotalDatabases     int           `json:"total_databases"`
	HealthyDatabases   int           `json:"healthy_databases"`
	DegradedDatabases  int           `json:"degraded_databases"`
	FailedDatabases    int           `json:"failed_databases"`
	OverallSuccessRate float64       `json:"overall_success_rate"`
	Uptime             time.Duration `json:"uptime"`

	Databases []stats.DatabaseSnapshot `json:"databases"`
}

// Config 管理器配置
type Config struct {
	// Enabled 全局开关；为 false 时所有 GetClient 立即返回 ErrDisabled
	Enabled bool `mapstructure:"enabled"`

	// Sources 配置来源（文件、注册中心、旧版兜底）
	Sources config.Config `mapstructure:"sources"`

	// Breaker 熔断策略，所有数据库共用同一套阈值
	Breaker breaker.Config `mapstructure:"breaker"`

	// ReapInterval 空闲回收周期 (默认: 60s)
	ReapInterval time.Duration `mapstructure:"reap_interval"`

	// MaxIdleTime 连接空闲超过此时长被回收 (默认: 300s)
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`

	// ReadyMaxWait 建池后等待后端就绪的预算 (默认: 30s)
	ReadyMaxWait time.Duration `mapstructure:"ready_max_wait"`

	// ReadyPollInterval 就绪探测间隔 (默认: 500ms)
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.ReapInterval <= 0 {
		c.ReapInterval = 60 * time.Second
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 300 * time.Second
	}
	if c.ReadyMaxWait <= 0 {
		c.ReadyMaxWait = 30 * time.Second
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = pool.DefaultReadyInterval
	}
}

// DefaultConfig 返回开启状态的默认配置
func DefaultConfig() *Config {
	cfg := &Config{Enabled: true}
	cfg.setDefaults()
	return cfg
}

// New 创建管理器实例并启动空闲回收任务
func New(cfg *Config, opts ...Option) (Manager, error) {
	return newManager(cfg, opts...)
}
