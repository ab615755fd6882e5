package xrate

import (
	"context"
	"time"
)

// AcquireResult 异步获取的完成结果
type AcquireResult struct {
	// Wait 实际等待的时长
	Wait time.Duration
	// Err 等待被取消或参数非法时的错误
	Err error
}

// AcquireAsync 非阻塞变体：在后台 goroutine 中执行阻塞的 Acquire，
// 完成后通过返回的通道投递结果。
//
// 通道带缓冲且恰好投递一次，随后关闭；调用方不读取也不会泄漏 goroutine
// （Acquire 本身受 ctx 约束）。取消通过 ctx 表达，与阻塞变体一致。
//
// 设计决策: 阻塞调用是主契约，异步只是薄适配层，
// 两者共享同一套预约/等待语义，不单独维护一条异步路径。
func AcquireAsync(ctx context.Context, l Limiter, n int) <-chan AcquireResult {
	ch := make(chan AcquireResult, 1)
	go func() {
		defer close(ch)
		wait, err := l.Acquire(ctx, n)
		ch <- AcquireResult{Wait: wait, Err: err}
	}()
	return ch
}
