// Package testkit 提供测试用的公共辅助函数。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/metrics"
)

// NewLogger 返回一个用于测试的 logger
// 输出到 stdout 的 console 格式，适合本地调试
func NewLogger() clog.Logger {
	logger, err := clog.New(&clog.Config{
		Level:  "debug",
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个用于测试的 meter
// 使用 Noop 模式，不实际输出指标
func NewMeter() metrics.Meter {
	return metrics.Noop()
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的 Key 或数据库名后缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}
