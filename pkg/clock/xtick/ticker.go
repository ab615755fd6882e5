package xtick

import (
	"context"
	"time"
)

// Ticker 单调时间源接口
//
// Now 返回自某个固定起点以来的纳秒数，保证在同一实例上单调不减。
// 起点本身没有意义，调用方只应比较同一实例返回的时间戳差值。
type Ticker interface {
	// Now 返回当前单调纳秒时间戳
	Now() int64
}

// Wall 操作系统单调时钟
//
// 基于 Go 运行时的单调时钟读数（time.Time 的 monotonic reading），
// 不受系统墙钟回拨影响。
type Wall struct {
	base time.Time
}

// NewWall 创建操作系统单调时钟
//
// 每次调用返回独立实例，时间起点为构造时刻。
// 同一个受保护依赖的限流器和熔断器应共享同一实例。
func NewWall() *Wall {
	return &Wall{base: time.Now()}
}

// Now 返回自构造时刻以来的纳秒数
func (w *Wall) Now() int64 {
	return time.Since(w.base).Nanoseconds()
}

// SleepContext 可取消的休眠
//
// 休眠 d 后返回 nil；若 ctx 先被取消，立即返回 context 的错误。
// d <= 0 时不休眠，但仍检查 ctx 是否已取消。
//
// 限流器的阻塞等待和重试器的退避等待都通过此函数休眠，
// 保证上层的 deadline/cancel 能及时中断等待。
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Ticker = (*Wall)(nil)
