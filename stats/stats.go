// Package stats 提供按数据库粒度的运行统计与全局汇总。
//
// 每个数据库维护成功/失败计数、最近成功/失败时间戳，以及最近
// responseWindow 次操作耗时的滚动平均。所有更新都在短持锁内完成，
// 持锁期间不做任何 I/O。
package stats

import (
	"sync"
	"time"
)

// responseWindow 滚动平均的采样窗口大小
const responseWindow = 100

// DatabaseStats 单个数据库的运行统计
type DatabaseStats struct {
	name string

	mu            sync.Mutex
	successes     uint64
	failures      uint64
	lastSuccess   time.Time
	lastError     time.Time
	lastAttemptOK bool
	hasAttempt    bool

	// 最近 responseWindow 次耗时的环形缓冲
	samples [responseWindow]time.Duration
	count   int // 已填充的样本数，封顶 responseWindow
	next    int // 下一个写入位置
}

// NewDatabase 创建数据库统计实例
func NewDatabase(name string) *DatabaseStats {
	return &DatabaseStats{name: name}
}

// Name 返回数据库名
func (s *DatabaseStats) Name() string {
	return s.name
}

// RecordSuccess 记录一次成功操作及其耗时
func (s *DatabaseStats) RecordSuccess(d time.Duration) {
	now := time.Now()

	s.mu.Lock()
	s.successes++
	s.lastSuccess = now
	s.lastAttemptOK = true
	s.hasAttempt = true

	s.samples[s.next] = d
	s.next = (s.next + 1) % responseWindow
	if s.count < responseWindow {
		s.count++
	}
	s.mu.Unlock()
}

// RecordFailure 记录一次失败操作
func (s *DatabaseStats) RecordFailure() {
	now := time.Now()

	s.mu.Lock()
	s.failures++
	s.lastError = now
	s.lastAttemptOK = false
	s.hasAttempt = true
	s.mu.Unlock()
}

// SuccessRate 返回成功率百分比；没有任何操作时定义为 100.0
func (s *DatabaseStats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return successRate(s.successes, s.failures)
}

// AvgResponseTime 返回窗口内的平均耗时；无样本时为 0
func (s *DatabaseStats) AvgResponseTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgLocked()
}

func (s *DatabaseStats) avgLocked() time.Duration {
	if s.count == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < s.count; i++ {
		total += s.samples[i]
	}
	return total / time.Duration(s.count)
}

// Snapshot 返回统计的一致性快照
func (s *DatabaseStats) Snapshot() DatabaseSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return DatabaseSnapshot{
		Name:            s.name,
		Successes:       s.successes,
		Failures:        s.failures,
		LastSuccessTime: s.lastSuccess,
		LastErrorTime:   s.lastError,
		LastAttemptOK:   s.lastAttemptOK,
		HasAttempt:      s.hasAttempt,
		SuccessRate:     successRate(s.successes, s.failures),
		AvgResponseTime: s.avgLocked(),
	}
}

// DatabaseSnapshot 单个数据库统计的点时快照
type DatabaseSnapshot struct {
	Name            string        `json:"name"`
	Successes       uint64        `json:"successes"`
	Failures        uint64        `json:"failures"`
	LastSuccessTime time.Time     `json:"last_success_time"`
	LastErrorTime   time.Time     `json:"last_error_time"`
	LastAttemptOK   bool          `json:"last_attempt_ok"`
	HasAttempt      bool          `json:"has_attempt"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// successRate 计算成功率百分比；零操作时定义为 100.0
func successRate(successes, failures uint64) float64 {
	total := successes + failures
	if total == 0 {
		return 100.0
	}
	return float64(successes) / float64(total) * 100.0
}

// OverallSuccessRate 计算跨数据库的整体成功率；零操作时为 100.0
func OverallSuccessRate(snaps []DatabaseSnapshot) float64 {
	var successes, failures uint64
	for _, s := range snaps {
		successes += s.Successes
		failures += s.Failures
	}
	return successRate(successes, failures)
}
