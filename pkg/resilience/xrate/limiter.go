package xrate

import (
	"context"
	"math"
	"time"
)

// Limiter 限流器核心接口
//
// 所有实现都是并发安全的，单个实例可以被多个 goroutine 共享。
//
// 错误契约：
//   - Acquire 对负许可数返回 ErrNegativePermits
//   - 窗口算法下 n 超过窗口容量时返回 ErrPermitsExceedCapacity，不等待
//   - 等待期间 ctx 取消时返回 ctx 的错误（已提交的预约不回滚）
//   - TryAcquire 没有错误路径，拒绝以 false 表达，调用方必须显式检查
type Limiter interface {
	// Acquire 阻塞直到 n 个许可可用，返回实际等待的时长（可能为 0）
	//
	// 等待可被 ctx 取消；取消时返回 ctx.Err()。
	Acquire(ctx context.Context, n int) (time.Duration, error)

	// TryAcquire 非阻塞地尝试获取 n 个许可
	//
	// 只有成功时才改变内部状态；失败时状态保持不变。
	// n 为负数时返回 false。
	TryAcquire(n int) bool

	// Available 返回当前可用许可数的估计值，仅用于观测，不改变状态
	Available() float64

	// EstimatedWait 估计获取下一个单许可需要等待的时长
	EstimatedWait() time.Duration

	// Rate 返回配置的每秒许可数
	Rate() float64
}

// Algorithm 限流算法标识
type Algorithm string

// 支持的限流算法。
const (
	// TokenBucket 令牌桶（默认），无锁 CAS，平滑且允许突发
	TokenBucket Algorithm = "token_bucket"

	// FixedWindow 固定窗口计数，边界滚动区间最多放行 2 倍配额
	FixedWindow Algorithm = "fixed_window"

	// SlidingWindow 滑动窗口，精确执行滚动窗口语义
	SlidingWindow Algorithm = "sliding_window"

	// Unlimited 永远放行，用于禁用限流
	Unlimited Algorithm = "unlimited"
)

// IsValid 检查算法标识是否有效
func (a Algorithm) IsValid() bool {
	switch a {
	case TokenBucket, FixedWindow, SlidingWindow, Unlimited, "":
		return true
	default:
		return false
	}
}

// New 创建限流器
//
// permitsPerSecond 必须为正数（Unlimited 算法除外，此时忽略）。
// 默认算法为 TokenBucket，突发容量 1。
//
// 示例：
//
//	// 每秒 10 个许可、突发 5 的令牌桶
//	limiter, err := xrate.New(10, xrate.WithBurst(5))
//
//	// 每分钟 100 次的滑动窗口
//	limiter, err := xrate.New(100.0/60,
//	    xrate.WithAlgorithm(xrate.SlidingWindow),
//	    xrate.WithWindow(time.Minute),
//	)
func New(permitsPerSecond float64, opts ...Option) (Limiter, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.algorithm == Unlimited {
		return NewUnlimited(), nil
	}

	if permitsPerSecond <= 0 || math.IsNaN(permitsPerSecond) || math.IsInf(permitsPerSecond, 0) {
		return nil, ErrInvalidRate
	}
	if cfg.burst < 1 {
		return nil, ErrInvalidBurst
	}
	if cfg.window <= 0 {
		return nil, ErrInvalidWindow
	}

	switch cfg.algorithm {
	case TokenBucket, "":
		return newTokenBucket(permitsPerSecond, cfg.burst, cfg.ticker), nil
	case FixedWindow:
		return newFixedWindow(permitsPerSecond, cfg.window, cfg.ticker), nil
	case SlidingWindow:
		return newSlidingWindow(permitsPerSecond, cfg.window, cfg.ticker), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// windowCapacity 计算窗口算法的配额上限
//
// maxOperations = round(permitsPerSecond × 窗口秒数)，最小为 1。
func windowCapacity(permitsPerSecond float64, window time.Duration) int64 {
	n := math.Round(permitsPerSecond * window.Seconds())
	if n < 1 {
		return 1
	}
	// 超大乘积直接封顶，避免 float64 → int64 转换溢出
	if n >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(n)
}
