package xbreaker

import (
	"errors"
	"fmt"
)

// 熔断器拦截请求时的 sentinel error，使用 errors.Is 比较。
var (
	// ErrOpenState 熔断器处于打开状态，请求未被执行
	ErrOpenState = errors.New("xbreaker: circuit breaker is open")

	// ErrTooManyRequests 半开状态下试探名额已满，请求未被执行
	ErrTooManyRequests = errors.New("xbreaker: too many requests in half-open state")
)

// ErrNilFunc 传入的操作函数为 nil
var ErrNilFunc = errors.New("xbreaker: function cannot be nil")

// BreakerError 熔断器错误包装类型
//
// 包装 ErrOpenState / ErrTooManyRequests，并携带熔断器名称和
// 错误发生时的状态，便于日志与告警直接读取。
//
// Retryable() 返回 false：熔断器拦截意味着下游不可用或正在试探恢复，
// 重试只会浪费尝试次数、拖慢快速失败。与 xretry 组合时，
// 该方法使打开的熔断器默认不被重试——对打开的熔断器做重试
// 是常见的集成错误，这里显式阻断。
type BreakerError struct {
	Err   error  // ErrOpenState 或 ErrTooManyRequests
	Name  string // 熔断器名称
	State State  // 错误发生时的状态
}

// Error 实现 error 接口
func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

// Unwrap 实现 errors.Unwrap 接口
func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 实现 xretry.RetryableError 接口，熔断拦截不可重试
func (e *BreakerError) Retryable() bool {
	return false
}

// IsOpen 检查错误是否由打开状态的熔断器产生
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpenState)
}

// IsTooManyRequests 检查错误是否因半开试探名额耗尽产生
func IsTooManyRequests(err error) bool {
	return errors.Is(err, ErrTooManyRequests)
}

// IsBreakerError 检查错误是否为熔断器拦截（两种拦截之一）
//
// 可用于区分熔断器错误和业务错误：
//
//	err := breaker.Do(ctx, fn)
//	if xbreaker.IsBreakerError(err) {
//	    return fallbackValue, nil
//	}
func IsBreakerError(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}
