// Package xbreaker 提供进程内熔断器
//
// 熔断器是一个三状态有限状态机，用于在下游持续故障时快速失败，
// 避免无意义的等待压垮调用方，并给下游留出恢复窗口：
//
//	Closed ──失败达到熔断阈值──▶ Open
//	Open ──恢复超时到期──▶ HalfOpen
//	HalfOpen ──试探连续成功──▶ Closed
//	HalfOpen ──试探失败──▶ Open
//
// 基本用法：
//
//	cb := xbreaker.New("user-service",
//		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//		xbreaker.WithRecoveryTimeout(30*time.Second),
//	)
//
//	err := cb.Do(ctx, func() error {
//		return callDownstream(ctx)
//	})
//	if xbreaker.IsOpen(err) {
//		// 熔断中，走降级逻辑
//	}
//
// 带返回值的调用使用泛型版本：
//
//	user, err := xbreaker.Execute(ctx, cb, func() (*User, error) {
//		return fetchUser(ctx, id)
//	})
//
// 熔断判定支持连续失败计数、失败率 EMA（指数移动平均）以及
// 二者的任意组合（NewComposite）。EMA 相比固定窗口失败率
// 无需维护滑动桶，单个 float64 即可平滑反映近期失败趋势。
//
// 设计决策:
//   - 状态机全部状态保存在单个不可变快照中，更新走 CAS 重试循环，
//     不持有任何锁；状态转换线性化，回调同步触发
//   - 结果记录与快照纪元绑定：慢请求完成时若状态已被并发转换，
//     其结果作废丢弃，不污染新状态的统计
//   - Open→HalfOpen 的转换惰性发生在下一次请求的准入阶段，
//     没有后台 goroutine，熔断器可被安全地创建和丢弃
//
// 本包只提供单进程语义；跨进程的故障协同不在职责范围内。
package xbreaker
