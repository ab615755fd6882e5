package xretry

import (
	"context"
	"time"
)

// RetryPolicy 定义重试策略接口
// 判断是否应该继续重试
//
// 通过 Retryer 使用时：
//   - MaxAttempts() 设置 retry-go 的 Attempts 上限
//   - ShouldRetry() 在每次失败后被调用，可实现自定义的重试判断逻辑
//   - 不可重试的错误（Classifier 或 RetryableError 判定）在
//     ShouldRetry 之前被短路拦截；内置策略不重复分类错误，
//     分类函数的结论不被策略推翻
type RetryPolicy interface {
	// MaxAttempts 返回最大尝试次数（包含首次尝试）
	// 返回 0 表示无限重试
	MaxAttempts() int

	// ShouldRetry 判断是否应该重试
	//
	// ctx: 上下文，可用于取消
	// attempt: 当前尝试次数（从 1 开始）
	// err: 上次执行的错误
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 定义退避策略接口
// 计算重试间隔时间
type BackoffPolicy interface {
	// NextDelay 返回下次重试的延迟时间
	// attempt: 当前尝试次数（从 1 开始）
	NextDelay(attempt int) time.Duration
}

// Classifier 错误分类函数：返回 true 表示该错误值得重试
//
// 分类优先级（Retryer.Do 内部）：
//  1. Classifier 设置时优先于一切错误类型约定
//  2. 错误实现 RetryableError 接口时按 Retryable() 判定
//  3. 其余错误默认可重试
type Classifier func(err error) bool

// JitterMode 退避抖动模式
//
// 抖动把同时失败的一批调用方的重试时间打散，避免它们在
// 同一时刻重试造成的惊群。
type JitterMode int

const (
	// JitterNone 无抖动，延迟严格等于指数退避的计算值
	JitterNone JitterMode = iota

	// JitterFull 完全抖动：延迟在 [0, base) 内均匀随机
	JitterFull

	// JitterBounded 有界抖动：延迟在 [base/2, base) 内均匀随机，
	// 保留至少一半退避时间，打散程度与可预期性折中
	JitterBounded
)

// String 返回抖动模式的字符串表示
func (m JitterMode) String() string {
	switch m {
	case JitterNone:
		return "none"
	case JitterFull:
		return "full"
	case JitterBounded:
		return "bounded"
	default:
		return "unknown"
	}
}

// IsValid 检查抖动模式是否为已知取值
func (m JitterMode) IsValid() bool {
	switch m {
	case JitterNone, JitterFull, JitterBounded:
		return true
	default:
		return false
	}
}

// Executor 重试执行器接口
//
// 设计决策: NewRetryer 返回 *Retryer 而非 Executor 接口，因为泛型函数
// DoWithResult 需要访问 *Retryer 的内部方法。调用方如需 mock 重试执行器，
// 可在自身代码中使用此接口作为函数参数类型。
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
