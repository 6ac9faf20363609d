package manager

import (
	"context"
	"time"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/pool"
)

// reapLoop 周期性回收空闲连接的后台任务
//
// 由 newManager 启动，CloseAll 取消并等待退出。单轮出错只记
// 日志，循环永不自行终止。
func (m *manager) reapLoop(ctx context.Context) {
	defer m.reapWG.Done()

	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

// reapOnce 对全部已注册池做一轮空闲回收
func (m *manager) reapOnce() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("idle reap iteration panicked", clog.Any("panic", r))
		}
	}()

	m.mu.RLock()
	var pools []pool.Pool
	var names []string
	for _, st := range m.dbs {
		for mode := Mode(0); mode < modeCount; mode++ {
			if p := st.pool(mode); p != nil {
				pools = append(pools, p)
				names = append(names, st.name)
			}
		}
	}
	m.mu.RUnlock()

	total := 0
	for i, p := range pools {
		n := p.ReapIdle(m.cfg.MaxIdleTime)
		if n > 0 {
			total += n
			m.logger.Debug("idle connections reaped",
				clog.String("database", names[i]),
				clog.Int("evicted", n))
		}
	}

	if total > 0 {
		m.logger.Info("idle reap cycle complete", clog.Int("evicted", total))
	}
}
