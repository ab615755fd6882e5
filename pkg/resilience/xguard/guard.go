package xguard

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/gatekit/pkg/resilience/xbreaker"
	"github.com/omeyang/gatekit/pkg/resilience/xrate"
	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

// Guard 弹性防护链
//
// 把三个独立的弹性原语组合成一次调用：
//
//	Retry ──▶ Breaker ──▶ Limiter ──▶ 操作
//
// 链路顺序是语义的一部分：
//   - 重试在最外层，每次重试都重新经过熔断器和限流器
//   - 熔断器在限流器之外，熔断期间的快速失败不消耗限流许可
//   - 限流许可在操作执行前获取，操作失败不退还（结果未知前配额已花出）
//
// 三级防护全部可选，未配置的环节直接透传。
// Guard 创建后不可变，单个实例可被多个 goroutine 共享。
type Guard struct {
	name    string
	retryer *xretry.Retryer
	breaker *xbreaker.Breaker
	limiter xrate.Limiter
	permits int
	wait    bool
	metrics *Metrics
	logger  *slog.Logger
}

// GuardOption 防护链配置选项
type GuardOption func(*Guard)

// WithRetryer 设置重试执行器（最外层）
//
// 熔断拦截错误（BreakerError）不可重试、限流拒绝（LimitError）
// 可重试的语义已内建在错误类型上，重试器默认按此判定。
func WithRetryer(r *xretry.Retryer) GuardOption {
	return func(g *Guard) {
		g.retryer = r
	}
}

// WithBreaker 设置熔断器（中间层）
//
// 注意：限流拒绝会流经熔断器的结果统计。Guard 从配置构建熔断器时
// 使用 NewLimitTolerantPolicy 避免限流把熔断器打开；
// 自带熔断器的调用方需要时自行设置该策略。
func WithBreaker(b *xbreaker.Breaker) GuardOption {
	return func(g *Guard) {
		g.breaker = b
	}
}

// WithLimiter 设置限流器（最内层）
func WithLimiter(l xrate.Limiter) GuardOption {
	return func(g *Guard) {
		g.limiter = l
	}
}

// WithPermits 设置每次操作消耗的许可数
//
// 默认值：1。n < 1 时被静默忽略。
func WithPermits(n int) GuardOption {
	return func(g *Guard) {
		if n >= 1 {
			g.permits = n
		}
	}
}

// WithLimiterWait 设置限流等待模式
//
// true 时许可不足会阻塞等待（可被 ctx 取消）；
// false（默认）时立即返回 LimitError，交给重试层退避。
func WithLimiterWait(wait bool) GuardOption {
	return func(g *Guard) {
		g.wait = wait
	}
}

// WithLogger 设置结构化日志
//
// 记录限流拒绝（Debug）和熔断拦截（Warn）。默认不输出日志。
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = l
	}
}

// New 创建弹性防护链
//
// name 用于日志和指标标识。meterProvider 为 nil 时不收集指标。
//
// 示例:
//
//	limiter, _ := xrate.New(100, xrate.WithBurst(20))
//	g, err := xguard.New("user-api", nil,
//	    xguard.WithLimiter(limiter),
//	    xguard.WithBreaker(xbreaker.New("user-api")),
//	    xguard.WithRetryer(xretry.NewRetryer()),
//	)
func New(name string, meterProvider metric.MeterProvider, opts ...GuardOption) (*Guard, error) {
	g := &Guard{
		name:    name,
		permits: 1,
	}
	for _, opt := range opts {
		opt(g)
	}

	m, err := NewMetrics(meterProvider)
	if err != nil {
		return nil, err
	}
	g.metrics = m
	return g, nil
}

// Do 执行受防护链保护的操作
//
// 错误语义：
//   - 限流拒绝（非阻塞模式）：LimitError，可重试
//   - 熔断拦截：BreakerError，不可重试
//   - 重试耗尽：xretry.ExhaustedError，可 Unwrap 出最后一次的错误
//   - 上下文取消：原样返回 ctx 的错误
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return ErrNilGuard
	}
	if fn == nil {
		return ErrNilFunc
	}

	start := time.Now()
	var attempts atomic.Int64

	op := func(ctx context.Context) error {
		attempts.Add(1)
		return g.protect(ctx, fn)
	}

	var err error
	if g.retryer != nil {
		err = g.retryer.Do(ctx, op)
	} else {
		err = op(ctx)
	}

	g.metrics.RecordDo(ctx, g.name, err, int(attempts.Load()), time.Since(start))
	return err
}

// Execute 执行受防护链保护的操作（泛型版本）
//
// 与 Do 相同的链路和错误语义，支持返回值。
func Execute[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return zero, ErrNilGuard
	}
	if fn == nil {
		return zero, ErrNilFunc
	}

	start := time.Now()
	var attempts atomic.Int64

	op := func(ctx context.Context) (T, error) {
		attempts.Add(1)
		return protectResult(ctx, g, fn)
	}

	var result T
	var err error
	if g.retryer != nil {
		result, err = xretry.DoWithResult(ctx, g.retryer, op)
	} else {
		result, err = op(ctx)
	}

	g.metrics.RecordDo(ctx, g.name, err, int(attempts.Load()), time.Since(start))
	return result, err
}

// protect 执行熔断和限流环节（单次尝试）
func (g *Guard) protect(ctx context.Context, fn func(ctx context.Context) error) error {
	exec := func() error {
		if err := g.acquire(ctx); err != nil {
			return err
		}
		return fn(ctx)
	}

	if g.breaker == nil {
		return exec()
	}

	err := g.breaker.Do(ctx, exec)
	if xbreaker.IsBreakerError(err) {
		g.logRejected(ctx, err)
	}
	return err
}

func protectResult[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	exec := func() (T, error) {
		var zero T
		if err := g.acquire(ctx); err != nil {
			return zero, err
		}
		return fn(ctx)
	}

	if g.breaker == nil {
		return exec()
	}

	result, err := xbreaker.Execute(ctx, g.breaker, exec)
	if xbreaker.IsBreakerError(err) {
		g.logRejected(ctx, err)
	}
	return result, err
}

// acquire 从限流器获取许可
//
// 取消或拒绝时许可不回滚：阻塞模式下已提交的预约保持生效，
// 非阻塞模式下拒绝本身不改变限流器状态。
func (g *Guard) acquire(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}

	if g.wait {
		_, err := g.limiter.Acquire(ctx, g.permits)
		return err
	}

	if !g.limiter.TryAcquire(g.permits) {
		lerr := &LimitError{Permits: g.permits, Wait: g.limiter.EstimatedWait()}
		if g.logger != nil {
			g.logger.DebugContext(ctx, "request rate limited",
				slog.String("guard", g.name),
				slog.Int("permits", g.permits),
				slog.Duration("estimated_wait", lerr.Wait),
			)
		}
		return lerr
	}
	return nil
}

func (g *Guard) logRejected(ctx context.Context, err error) {
	if g.logger == nil {
		return
	}
	g.logger.WarnContext(ctx, "request rejected by circuit breaker",
		slog.String("guard", g.name),
		slog.String("error", err.Error()),
	)
}

// Name 返回防护链名称
func (g *Guard) Name() string {
	return g.name
}

// Breaker 返回熔断器，未配置时为 nil
func (g *Guard) Breaker() *xbreaker.Breaker {
	return g.breaker
}

// Limiter 返回限流器，未配置时为 nil
func (g *Guard) Limiter() xrate.Limiter {
	return g.limiter
}

// NewLimitTolerantPolicy 创建对限流拒绝中性的熔断成功判定策略
//
// 限流拒绝（LimitError）说明的是本地拥塞而非下游故障，
// 不应累积熔断失败统计。该策略把限流拒绝判定为"成功"，
// 其余错误按 err == nil 判定。
func NewLimitTolerantPolicy() xbreaker.SuccessPolicy {
	return limitTolerantPolicy{}
}

type limitTolerantPolicy struct{}

func (limitTolerantPolicy) IsSuccessful(err error) bool {
	return err == nil || errors.Is(err, ErrRateLimited)
}
