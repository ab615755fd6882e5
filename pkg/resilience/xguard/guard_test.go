package xguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
	"github.com/omeyang/gatekit/pkg/resilience/xbreaker"
	"github.com/omeyang/gatekit/pkg/resilience/xrate"
	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

var errDownstream = errors.New("downstream unavailable")

func mustLimiter(t *testing.T, rate float64, opts ...xrate.Option) xrate.Limiter {
	t.Helper()
	l, err := xrate.New(rate, opts...)
	require.NoError(t, err)
	return l
}

func fastRetryer(maxRetry int) *xretry.Retryer {
	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(maxRetry)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
	)
}

func TestGuard_NoStagesPassesThrough(t *testing.T) {
	g, err := New("bare", nil)
	require.NoError(t, err)

	var calls int
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, g.Do(context.Background(), func(ctx context.Context) error {
		return errDownstream
	}), errDownstream)
}

func TestGuard_LimiterRejects(t *testing.T) {
	// burst=1：第二次调用必然被拒
	g, err := New("limited", nil,
		WithLimiter(mustLimiter(t, 1, xrate.WithBurst(1))),
	)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))

	var invoked bool
	err = g.Do(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})

	assert.False(t, invoked)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Permits)
	assert.Greater(t, le.Wait, time.Duration(0))
}

func TestGuard_LimiterWaitBlocks(t *testing.T) {
	g, err := New("waiting", nil,
		WithLimiter(mustLimiter(t, 20, xrate.WithBurst(1))),
		WithLimiterWait(true),
	)
	require.NoError(t, err)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))
	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))

	// 第二次调用需等待约 50ms 补充令牌
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestGuard_LimitErrorRetriedWithBackoff(t *testing.T) {
	// 限流拒绝可重试：重试层退避后再次尝试，令牌补充后成功
	g, err := New("retry-limit", nil,
		WithLimiter(mustLimiter(t, 50, xrate.WithBurst(1))),
		WithRetryer(xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewFixedRetry(5)),
			xretry.WithBackoffPolicy(xretry.NewFixedBackoff(30*time.Millisecond)),
		)),
	)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))

	var calls int
	require.NoError(t, g.Do(ctx, func(ctx context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestGuard_BreakerOpenNotRetried(t *testing.T) {
	breaker := xbreaker.New("test", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(1)))
	g, err := New("breaker-guard", nil,
		WithBreaker(breaker),
		WithRetryer(fastRetryer(5)),
	)
	require.NoError(t, err)
	ctx := context.Background()

	var calls int
	fail := func(ctx context.Context) error {
		calls++
		return errDownstream
	}

	// 首次调用：第 1 次尝试真实失败并触发熔断，后续重试被熔断拦截。
	// BreakerError 不可重试，重试层立刻终止，不再累积尝试。
	err = g.Do(ctx, fail)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, xbreaker.IsOpen(err))
	assert.Equal(t, xbreaker.StateOpen, breaker.State())

	// 熔断期间操作完全不被执行
	err = g.Do(ctx, fail)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, xbreaker.IsOpen(err))
}

func TestGuard_BreakerOpenSkipsLimiter(t *testing.T) {
	breaker := xbreaker.New("test", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(1)))
	limiter := mustLimiter(t, 10, xrate.WithBurst(10))
	g, err := New("ordered", nil,
		WithBreaker(breaker),
		WithLimiter(limiter),
	)
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, g.Do(ctx, func(ctx context.Context) error { return errDownstream }))
	require.Equal(t, xbreaker.StateOpen, breaker.State())

	before := limiter.Available()
	_ = g.Do(ctx, func(ctx context.Context) error { return nil })

	// 熔断拦截发生在限流之前，许可未被消耗
	assert.InDelta(t, before, limiter.Available(), 0.5)
}

func TestGuard_RetryRecoversTransientFailure(t *testing.T) {
	g, err := New("transient", nil, WithRetryer(fastRetryer(3)))
	require.NoError(t, err)

	var calls int
	require.NoError(t, g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errDownstream
		}
		return nil
	}))
	assert.Equal(t, 3, calls)
}

func TestGuard_RetryExhausted(t *testing.T) {
	g, err := New("exhausted", nil, WithRetryer(fastRetryer(2)))
	require.NoError(t, err)

	var calls int
	err = g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errDownstream
	})

	assert.Equal(t, 3, calls)
	assert.True(t, xretry.IsExhausted(err))
	assert.ErrorIs(t, err, errDownstream)
}

func TestGuard_FullChain(t *testing.T) {
	fake := xtick.NewFake(0)
	breaker := xbreaker.New("chain",
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(2)),
		xbreaker.WithRecoveryTimeout(time.Second),
		xbreaker.WithTicker(fake),
	)
	g, err := New("chain", nil,
		WithLimiter(mustLimiter(t, 1000, xrate.WithBurst(100))),
		WithBreaker(breaker),
		WithRetryer(fastRetryer(1)),
	)
	require.NoError(t, err)
	ctx := context.Background()

	// 两次尝试（首次 + 1 次重试）都失败，熔断器打开
	var calls int
	err = g.Do(ctx, func(ctx context.Context) error {
		calls++
		return errDownstream
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, xbreaker.StateOpen, breaker.State())

	// 恢复超时后成功的试探让链路整体恢复
	fake.Advance(2 * time.Second)
	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))
	assert.Equal(t, xbreaker.StateClosed, breaker.State())
}

func TestGuard_ContextCancelled(t *testing.T) {
	g, err := New("cancelled", nil,
		WithLimiter(mustLimiter(t, 1, xrate.WithBurst(1))),
		WithLimiterWait(true),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))

	// 令牌耗尽后阻塞等待被超时打断
	err = g.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuard_NilGuards(t *testing.T) {
	var g *Guard
	assert.ErrorIs(t, g.Do(context.Background(), func(ctx context.Context) error { return nil }), ErrNilGuard)

	g2, err := New("x", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, g2.Do(context.Background(), nil), ErrNilFunc)
}

func TestExecute_ReturnsValue(t *testing.T) {
	g, err := New("generic", nil, WithRetryer(fastRetryer(2)))
	require.NoError(t, err)

	var calls int
	got, err := Execute(context.Background(), g, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errDownstream
		}
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 2, calls)
}

func TestExecute_NilGuard(t *testing.T) {
	got, err := Execute[int](context.Background(), nil, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	assert.Zero(t, got)
	assert.ErrorIs(t, err, ErrNilGuard)
}

func TestGuard_Accessors(t *testing.T) {
	breaker := xbreaker.New("acc")
	limiter := mustLimiter(t, 10)
	g, err := New("acc", nil, WithBreaker(breaker), WithLimiter(limiter))
	require.NoError(t, err)

	assert.Equal(t, "acc", g.Name())
	assert.Same(t, breaker, g.Breaker())
	assert.Equal(t, limiter, g.Limiter())
}

func TestLimitTolerantPolicy(t *testing.T) {
	p := NewLimitTolerantPolicy()

	assert.True(t, p.IsSuccessful(nil))
	assert.True(t, p.IsSuccessful(&LimitError{Permits: 1}))
	assert.False(t, p.IsSuccessful(errDownstream))
}

func TestGuard_LimitErrorDoesNotTripBreaker(t *testing.T) {
	breaker := xbreaker.New("tolerant",
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(2)),
		xbreaker.WithSuccessPolicy(NewLimitTolerantPolicy()),
	)
	g, err := New("tolerant", nil,
		WithBreaker(breaker),
		WithLimiter(mustLimiter(t, 1, xrate.WithBurst(1))),
	)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Do(ctx, func(ctx context.Context) error { return nil }))

	// 连续限流拒绝不会累积熔断失败
	for i := 0; i < 10; i++ {
		err := g.Do(ctx, func(ctx context.Context) error { return nil })
		require.True(t, IsRateLimited(err))
	}
	assert.Equal(t, xbreaker.StateClosed, breaker.State())
}
