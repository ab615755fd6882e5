package xretry

import "context"

// FixedRetryPolicy 固定次数重试策略
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry 创建固定次数重试策略
//
// maxRetry: 首次失败后的最大重试次数，总尝试次数为 maxRetry+1。
// 负数按 0 处理（只执行首次尝试，不重试）。
func NewFixedRetry(maxRetry int) *FixedRetryPolicy {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &FixedRetryPolicy{maxAttempts: maxRetry + 1}
}

func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry 只关心尝试次数与上下文。
// 错误是否值得重试由 Classifier（或 RetryableError 约定）判定，
// 策略不做二次分类，分类函数的结论是最终结论。
func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, _ error) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < p.maxAttempts
}

// AlwaysRetryPolicy 无限重试策略（慎用）
// 只有上下文取消或错误被分类为不可重试（Retryer 层判定）才会停止
type AlwaysRetryPolicy struct{}

// NewAlwaysRetry 创建无限重试策略
func NewAlwaysRetry() *AlwaysRetryPolicy {
	return &AlwaysRetryPolicy{}
}

func (p *AlwaysRetryPolicy) MaxAttempts() int {
	return 0 // 0 表示无限
}

func (p *AlwaysRetryPolicy) ShouldRetry(ctx context.Context, _ int, _ error) bool {
	return ctx.Err() == nil
}

// NeverRetryPolicy 永不重试策略
type NeverRetryPolicy struct{}

// NewNeverRetry 创建永不重试策略
func NewNeverRetry() *NeverRetryPolicy {
	return &NeverRetryPolicy{}
}

func (p *NeverRetryPolicy) MaxAttempts() int {
	return 1
}

func (p *NeverRetryPolicy) ShouldRetry(_ context.Context, _ int, _ error) bool {
	return false
}

// 确保实现了 RetryPolicy 接口
var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*AlwaysRetryPolicy)(nil)
	_ RetryPolicy = (*NeverRetryPolicy)(nil)
)
