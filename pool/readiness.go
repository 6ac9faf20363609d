package pool

import (
	"context"
	"strings"
	"time"
)

// DefaultReadyInterval 就绪轮询的默认间隔
const DefaultReadyInterval = 500 * time.Millisecond

// IsLoading 判断错误是否是服务端的 "dataset still loading" 瞬态状态
//
// Redis 在从 RDB/AOF 恢复期间对命令回复
// "LOADING Redis is loading the dataset in memory"。
func IsLoading(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "LOADING")
}

// WaitReady 轮询池直到后端就绪
//
// 以 interval 为间隔发起存活探测（interval <= 0 时用
// DefaultReadyInterval）。LOADING 是预期内的瞬态状态，继续轮询且
// 不算失败；其他任何错误立即传播。maxWait 耗尽而未成功时返回
// (false, nil)，由调用方决定是否放弃池注册。
func WaitReady(ctx context.Context, p Pool, maxWait, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = DefaultReadyInterval
	}
	deadline := time.Now().Add(maxWait)

	for {
		err := p.Ping(ctx)
		if err == nil {
			return true, nil
		}
		if !IsLoading(err) {
			return false, err
		}

		if time.Now().Add(interval).After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}
