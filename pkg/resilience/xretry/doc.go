// Package xretry 提供通用的重试策略和退避策略接口及实现。
//
// # 设计理念
//
// xretry 采用接口驱动设计：
//   - RetryPolicy：定义重试多少次
//   - BackoffPolicy：定义重试间隔时间
//   - Classifier：定义哪些错误值得重试
//
// 底层使用 [avast/retry-go/v5] 实现重试逻辑。
//
// # 重试策略
//
//   - FixedRetryPolicy：固定次数重试（NewFixedRetry(n) 表示首次失败后最多再试 n 次）
//   - AlwaysRetryPolicy：无限重试（慎用）
//   - NeverRetryPolicy：永不重试
//
// # 退避策略
//
//   - ExponentialBackoff：指数退避，抖动模式可选
//     JitterNone / JitterFull / JitterBounded
//   - LinearBackoff：线性退避
//   - FixedBackoff：固定延迟
//   - NoBackoff：无延迟
//
// # 使用方式
//
// 方式一：使用 Retryer（推荐用于需要接口抽象的场景）
//
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return doSomething(ctx)
//	})
//	if xretry.IsExhausted(err) {
//	    // 次数用完，err 可 Unwrap 出最后一次的原始错误
//	}
//
// 方式二：直接使用 retry-go 风格（推荐用于简单场景）
//
//	err := xretry.Do(ctx, func() error {
//	    return doSomething()
//	}, xretry.Attempts(3), xretry.Delay(100*time.Millisecond))
//
// # 错误分类
//
//   - WithClassifier(f)：分类函数，优先级最高
//   - NewPermanentError(err)：标记为永久性错误（不应重试）
//   - NewTemporaryError(err)：标记为临时性错误（应该重试）
//   - Unrecoverable(err)：retry-go 风格的不可恢复错误
//
// 所有尝试失败且最后的错误仍可重试时，Retryer.Do 返回 ExhaustedError；
// 不可重试错误和上下文取消原样返回，便于调用方 errors.Is 判断。
//
// # 性能
//
// 退避抖动使用 crypto/rand 生成随机数，单次 NextDelay 调用耗时约
// 50-100ns，对重试场景完全可接受。需要确定性延迟时使用
// WithJitterMode(JitterNone)。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
