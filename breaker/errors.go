package breaker

import "github.com/ceyewan/redisman/xerrors"

// 错误定义
var (
	// ErrOpen 熔断器处于打开状态，请求被快速拒绝
	ErrOpen = xerrors.New("breaker: circuit breaker is open")
)
