package xretry

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// safeIntToUint 将 int 安全转换为 uint。
// 负数返回 0，正数直接转换。
// 用于将 MaxAttempts (int) 传递给 retry-go 的 Attempts (uint)。
func safeIntToUint(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}

// safeUintToInt 将 uint 安全转换为 int。
// 超过 MaxInt 的值会被截断到 MaxInt。
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

// 确保 *Retryer 实现 Executor 接口
var _ Executor = (*Retryer)(nil)

// Retryer 重试执行器
//
// Retryer 组合了 RetryPolicy（重试几次）、BackoffPolicy（间隔多久）
// 和 Classifier（哪些错误值得重试），提供统一的重试执行能力。
//
// 底层使用 avast/retry-go/v5 实现。
// 如需使用 retry-go 的完整功能，可以通过 Retrier() 方法获取底层实例。
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	classifier    Classifier
	onRetry       func(attempt int, err error)
}

// RetryerOption 执行器配置选项
type RetryerOption func(*Retryer)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy 设置退避策略
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithClassifier 设置错误分类函数
//
// 设置后优先于 RetryableError 接口约定：分类函数返回 false 的
// 错误立即终止重试并原样返回。传入 nil 会被静默忽略。
func WithClassifier(f Classifier) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.classifier = f
		}
	}
}

// WithOnRetry 设置重试回调函数。
// 回调在每次失败后、退避等待前触发，attempt 从 1 开始。
// 传入 nil 会被静默忽略（与 WithRetryPolicy/WithBackoffPolicy 保持一致）。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 创建重试执行器
// 默认使用 FixedRetry(3)（共 4 次尝试）和 ExponentialBackoff
//
// 设计决策: 返回 *Retryer 而非 Executor 接口，因为泛型函数 DoWithResult
// 需要访问内部方法。如需 mock，请在调用方使用 Executor 接口作为参数类型。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do 执行带重试的操作
//
// 所有尝试失败且最后的错误仍可重试时，返回包装了尝试次数与
// 原始错误的 ExhaustedError。不可重试错误和上下文取消原样返回。
// 如果接收者为 nil，返回 ErrNilRetryer。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}

	var attempts atomic.Int64
	opts := r.buildOptions(ctx, &attempts)

	err := retry.New(opts...).Do(func() error {
		attempts.Add(1)
		return fn(ctx)
	})
	return r.finalize(ctx, err, int(attempts.Load()))
}

// DoWithResult 执行带重试的操作（有返回值）
//
// 这是泛型函数，必须作为包级函数使用。
// 如果 r 为 nil，返回零值和 ErrNilRetryer。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}

	var attempts atomic.Int64
	opts := r.buildOptions(ctx, &attempts)

	result, err := retry.NewWithData[T](opts...).Do(func() (T, error) {
		attempts.Add(1)
		return fn(ctx)
	})
	if err != nil {
		return zero, r.finalize(ctx, err, int(attempts.Load()))
	}
	return result, nil
}

// retryable 按配置判定错误是否值得重试
func (r *Retryer) retryable(err error) bool {
	if r.classifier != nil {
		return r.classifier(err)
	}
	return IsRetryable(err)
}

// finalize 把 retry-go 的最终错误转换为对外语义
//
// 只有"次数用完且最后的错误本可以继续重试"才算耗尽；
// 上下文取消和不可重试错误是"不该再试"，原样返回，
// 调用方可以直接 errors.Is 到原始错误。
func (r *Retryer) finalize(ctx context.Context, err error, attempts int) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if !IsRecoverable(err) || !r.retryable(err) {
		return err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

// buildOptions 构建 retry-go 的选项
//
// 设计决策: 每次 Do 调用重建选项切片（约 440 B/op, 13 allocs/op），
// 对于重试场景完全可接受。预构建不变选项可减少分配，
// 但增加并发安全复杂度，收益微乎其微。
func (r *Retryer) buildOptions(ctx context.Context, attempts *atomic.Int64) []Option {
	opts := make([]Option, 0, 6)

	opts = append(opts, Context(ctx))

	// 防止零值 Retryer 使用时 panic
	retryPolicy := r.retryPolicy
	if retryPolicy == nil {
		retryPolicy = NewFixedRetry(3)
	}
	backoffPolicy := r.backoffPolicy
	if backoffPolicy == nil {
		backoffPolicy = NewExponentialBackoff()
	}

	// maxAttempts <= 0 视为无限重试
	maxAttempts := retryPolicy.MaxAttempts()
	if maxAttempts <= 0 {
		opts = append(opts, UntilSucceeded())
	} else {
		opts = append(opts, Attempts(safeIntToUint(maxAttempts)))
	}

	// 设计决策: Attempts(maxAttempts) 设置 retry-go 的硬上限，RetryIf 提供
	// 逐次判断，两者共同生效。分类顺序：Unrecoverable 短路 → Classifier
	// （或 RetryableError 约定）→ RetryPolicy.ShouldRetry。
	// attempts 计数在执行闭包内递增，此处只读，语义为"已完成的尝试次数"。
	opts = append(opts, RetryIf(func(err error) bool {
		if !IsRecoverable(err) {
			return false
		}
		if !r.retryable(err) {
			return false
		}
		return retryPolicy.ShouldRetry(ctx, int(attempts.Load()), err)
	}))

	opts = append(opts, DelayType(func(n uint, _ error, _ DelayContext) time.Duration {
		// retry-go v5 中 DelayType 的 n 从 1 开始，与 BackoffPolicy.NextDelay 一致
		return backoffPolicy.NextDelay(safeUintToInt(n))
	}))

	if r.onRetry != nil {
		opts = append(opts, OnRetry(func(n uint, err error) {
			// retry-go v5 中 OnRetry 的 n 从 0 开始，需要 +1 转换为 1-based
			r.onRetry(safeUintToInt(n)+1, err)
		}))
	}

	// 只返回最后一个错误，简化调用方的错误处理
	opts = append(opts, LastErrorOnly(true))

	return opts
}

// Retrier 返回底层的 retry.Retrier
//
// 通过此方法可以获取 retry-go 的原生 Retrier 实例，
// 使用 retry-go 的完整功能。不做 ExhaustedError 包装。
// 如果接收者为 nil，使用默认配置创建实例。
//
// 重要: 返回的实例为一次性使用（类比 strings.Builder）。
// 内部 RetryIf 闭包维护了尝试计数，对同一实例多次调用 Do()
// 会导致计数累积，产生非预期的重试行为。
// 每次需要重试时应重新调用 Retrier() 获取新实例。
func (r *Retryer) Retrier(ctx context.Context) *retry.Retrier {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return retry.New(Context(ctx))
	}
	var attempts atomic.Int64
	return retry.New(r.buildOptions(ctx, &attempts)...)
}

// RetrierWithData 返回底层的 retry.RetrierWithData
//
// 与 Retrier() 类似，但用于需要返回值的场景。
// 如果 r 为 nil，使用默认配置创建实例。
//
// 重要: 返回的实例为一次性使用，详见 Retrier 方法的文档说明。
func RetrierWithData[T any](ctx context.Context, r *Retryer) *retry.RetrierWithData[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return retry.NewWithData[T](Context(ctx))
	}
	var attempts atomic.Int64
	return retry.NewWithData[T](r.buildOptions(ctx, &attempts)...)
}

// RetryPolicy 返回当前重试策略。
// nil 接收者返回 nil。
func (r *Retryer) RetryPolicy() RetryPolicy {
	if r == nil {
		return nil
	}
	return r.retryPolicy
}

// BackoffPolicy 返回当前退避策略。
// nil 接收者返回 nil。
func (r *Retryer) BackoffPolicy() BackoffPolicy {
	if r == nil {
		return nil
	}
	return r.backoffPolicy
}
