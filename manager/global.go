package manager

import "sync"

// 进程级默认实例，只在应用的组装层设置一次
var (
	defaultMu  sync.RWMutex
	defaultMgr Manager
)

// Default 返回进程级默认管理器；未设置时为 nil
func Default() Manager {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultMgr
}

// SetDefault 设置进程级默认管理器，先到先得
//
// 已设置过时返回 false 且不覆盖，避免运行中被悄悄换掉。
func SetDefault(m Manager) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMgr != nil {
		return false
	}
	defaultMgr = m
	return true
}
