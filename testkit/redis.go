package testkit

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/ceyewan/redisman/config"
)

// StartRedis 启动一个进程内的 Redis 测试实例
// 实例随测试结束自动关闭
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// RedisConfig 返回指向测试实例的数据库配置（已填充默认值）
func RedisConfig(t *testing.T, mr *miniredis.Miniredis, name string) *config.DatabaseConfig {
	t.Helper()

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("failed to parse miniredis port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Name: name,
		Host: mr.Host(),
		Port: port,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate redis config: %v", err)
	}
	return cfg
}
