// Package xguard 把限流、熔断、重试组合成一条弹性防护链
//
// 三个原语各自解决一类问题：
//   - xrate 限流器约束本进程对下游的请求速率
//   - xbreaker 熔断器在下游持续故障时快速失败
//   - xretry 重试器消化瞬时失败
//
// 单独使用时组合顺序容易写错（例如对打开的熔断器做重试，
// 或让熔断期间的请求白白消耗限流许可）。Guard 固定了正确的链路：
//
//	Retry ──▶ Breaker ──▶ Limiter ──▶ 操作
//
//   - 每次重试都重新经过熔断器和限流器
//   - 熔断期间的快速失败不消耗限流许可
//   - 限流拒绝（LimitError）可重试，熔断拦截（BreakerError）不可重试，
//     这一语义内建在错误类型上，重试器自动遵守
//
// 基本用法：
//
//	limiter, _ := xrate.New(100, xrate.WithBurst(20))
//	g, err := xguard.New("user-api", meterProvider,
//	    xguard.WithLimiter(limiter),
//	    xguard.WithBreaker(xbreaker.New("user-api")),
//	    xguard.WithRetryer(xretry.NewRetryer()),
//	)
//
//	err = g.Do(ctx, func(ctx context.Context) error {
//	    return callDownstream(ctx)
//	})
//
// 声明式配置（支持 YAML/JSON，基于 xconf）：
//
//	cfg, _ := xconf.New("/etc/gatekit/guard.yaml")
//	guardCfg, _ := xguard.LoadConfig(cfg, "guard")
//	g, _ := xguard.FromConfig(guardCfg, meterProvider)
//
// 三级防护全部可选：未配置的环节直接透传，只配置限流的 Guard
// 就是一个带指标的限流器。
//
// 指标（meterProvider 为 nil 时关闭）：请求总数、限流拒绝数、
// 熔断拦截数、重试次数、链路耗时直方图。
package xguard
