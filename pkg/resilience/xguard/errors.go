package xguard

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited 请求被限流拒绝的 sentinel error，使用 errors.Is 比较。
var ErrRateLimited = errors.New("xguard: rate limited")

// ErrNilFunc 传入的操作函数为 nil
var ErrNilFunc = errors.New("xguard: function cannot be nil")

// ErrNilGuard 接收者为 nil
var ErrNilGuard = errors.New("xguard: guard cannot be nil")

// LimitError 限流拒绝错误
//
// 非阻塞模式（TryAcquire）下限流器拒绝请求时返回，携带请求的
// 许可数和预计可用等待时长，便于调用方与日志定位。
//
// Retryable() 返回 true：限流是局部的瞬时拥塞，退避后重试
// 正是 Retry → Breaker → Limiter 链路的预期路径。
type LimitError struct {
	Permits int           // 请求的许可数
	Wait    time.Duration // 预计需等待的时长（估计值）
}

// Error 实现 error 接口
func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %d permit(s), retry after ~%v", e.Permits, e.Wait)
}

// Unwrap 返回 ErrRateLimited，使 errors.Is 匹配成立
func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}

// Retryable 实现 xretry.RetryableError 接口，限流拒绝可重试
func (e *LimitError) Retryable() bool {
	return true
}

// IsRateLimited 检查错误是否为限流拒绝
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
