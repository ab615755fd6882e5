// Package xtick 提供单调时间源抽象，使依赖时间的算法可确定性测试。
//
// # 设计理念
//
// 限流器和熔断器的核心算法都建立在单调纳秒时间戳之上。
// xtick 将时间源抽象为 Ticker 接口，通过依赖注入传递：
//   - 生产环境使用 NewWall() 包装操作系统单调时钟
//   - 测试环境使用 NewFake() 手动推进时间
//
// Ticker 不是进程级全局单例，每个实例由构造方显式持有，
// 不同测试可以创建互不干扰的独立实例。
//
// # 使用方式
//
//	tk := xtick.NewWall()
//	limiter, _ := xrate.New(10, xrate.WithTicker(tk))
//
// 测试中：
//
//	fake := xtick.NewFake(0)
//	fake.Advance(100 * time.Millisecond)
package xtick
