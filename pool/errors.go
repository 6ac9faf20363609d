package pool

import "github.com/ceyewan/redisman/xerrors"

// Sentinel Errors - 连接池专用的哨兵错误
var (
	// ErrExhausted 池中没有空闲槽位
	ErrExhausted = xerrors.New("pool: no free connection")

	// ErrClosed 池已关闭
	ErrClosed = xerrors.New("pool: pool is closed")

	// ErrConnect 连接建立失败（重试耗尽）
	ErrConnect = xerrors.New("pool: connection failed")
)
