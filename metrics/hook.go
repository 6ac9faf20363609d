package metrics

import "context"

// 熔断器事件名
const (
	// EventOpened 熔断器打开
	EventOpened = "opened"

	// EventClosed 熔断器关闭
	EventClosed = "closed"
)

// Hook 接收连接管理层的事件回调
//
// 实现方必须保证回调快速返回且不阻塞；调用方会在主路径之外
// 以尽力而为的方式调用，回调中的 panic 会被吞掉并记录日志。
type Hook interface {
	// RecordOperation 每次操作尝试后调用一次
	//
	// database  - 逻辑数据库名
	// operation - 操作名（如 "get_client"、"ping"）
	// success   - 本次尝试是否成功
	RecordOperation(ctx context.Context, database, operation string, success bool)

	// RecordBreakerEvent 熔断器状态变更时调用
	//
	// database - 逻辑数据库名
	// event    - EventOpened 或 EventClosed
	// reason   - 变更原因（如 "failure threshold reached"）
	RecordBreakerEvent(ctx context.Context, database, event, reason string)
}

// meterHook 基于 Meter 的默认 Hook 实现
type meterHook struct {
	operations  Counter
	transitions Counter
}

// NewMeterHook 创建基于 Meter 的 Hook
//
// 注册两个计数器：
//   - redisman_operations_total{database, operation, result}
//   - redisman_breaker_transitions_total{database, event, reason}
func NewMeterHook(meter Meter) (Hook, error) {
	operations, err := meter.Counter(
		"redisman_operations_total",
		"Total number of Redis operation attempts",
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Counter(
		"redisman_breaker_transitions_total",
		"Total number of circuit breaker state transitions",
	)
	if err != nil {
		return nil, err
	}

	return &meterHook{
		operations:  operations,
		transitions: transitions,
	}, nil
}

func (h *meterHook) RecordOperation(ctx context.Context, database, operation string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	h.operations.Inc(ctx,
		L(LabelDatabase, database),
		L(LabelOperation, operation),
		L(LabelResult, result),
	)
}

func (h *meterHook) RecordBreakerEvent(ctx context.Context, database, event, reason string) {
	h.transitions.Inc(ctx,
		L(LabelDatabase, database),
		L(LabelEvent, event),
		L(LabelReason, reason),
	)
}

// nopHook 空操作 Hook
type nopHook struct{}

// NopHook 返回一个丢弃所有事件的 Hook
func NopHook() Hook {
	return &nopHook{}
}

func (h *nopHook) RecordOperation(ctx context.Context, database, operation string, success bool) {}
func (h *nopHook) RecordBreakerEvent(ctx context.Context, database, event, reason string)        {}
