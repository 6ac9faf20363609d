package manager

import "github.com/ceyewan/redisman/xerrors"

// 预定义错误
var (
	// ErrDisabled 功能被全局开关关闭，不会重试
	ErrDisabled = xerrors.New("manager: disabled by configuration")

	// ErrCircuitOpen 熔断打开且仍在时间窗口内，本层不重试，
	// 由调用方决定稍后再试
	ErrCircuitOpen = xerrors.New("manager: circuit breaker open")

	// ErrConnection 传输层失败，内部重试耗尽后浮出
	ErrConnection = xerrors.New("manager: connection failed")

	// ErrReadinessTimeout 就绪等待预算耗尽，池构建中止且未注册
	ErrReadinessTimeout = xerrors.New("manager: readiness wait timed out")
)
