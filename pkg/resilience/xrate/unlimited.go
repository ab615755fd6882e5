package xrate

import (
	"context"
	"math"
	"time"
)

// unlimited 永远放行的限流器
//
// 用于在不改动调用点分支的前提下禁用限流：
// 注入 NewUnlimited() 后所有准入检查都立即成功。
type unlimited struct{}

// NewUnlimited 创建永远放行的限流器
func NewUnlimited() Limiter {
	return unlimited{}
}

func (unlimited) Acquire(ctx context.Context, n int) (time.Duration, error) {
	if n < 0 {
		return 0, ErrNegativePermits
	}
	return 0, ctx.Err()
}

func (unlimited) TryAcquire(n int) bool {
	return n >= 0
}

func (unlimited) Available() float64 {
	return math.MaxFloat64
}

func (unlimited) EstimatedWait() time.Duration {
	return 0
}

func (unlimited) Rate() float64 {
	return math.MaxFloat64
}

var _ Limiter = unlimited{}
