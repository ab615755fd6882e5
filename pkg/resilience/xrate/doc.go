// Package xrate 提供进程内限流能力，约束某个操作的吞吐量。
//
// # 设计理念
//
// xrate 是单进程、纯内存的准入控制层：每个 Limiter 实例独占自己的状态，
// 不跨进程协调配额。限流器实例应按受保护的逻辑依赖共享（按引用传递），
// 所有状态变更都在内部以原子方式完成，调用方无须加锁。
//
// # 算法
//
// 通过 WithAlgorithm 选择，共四种实现：
//
//   - TokenBucket（默认）：令牌以固定速率连续累积，容量受突发上限约束。
//     状态为不可变快照，以无锁 CAS 重试循环整体替换，并发退化为有界重试
//     而非阻塞。平滑、允许突发，适合绝大多数场景。
//   - FixedWindow：把时间切分为固定窗口并计数，跨入新窗口时清零。
//     实现最简单、O(1) 内存，但在窗口边界附近的任意滚动区间内
//     最多可放行 2 倍配额。这是已知并接受的特性，不是缺陷。
//   - SlidingWindow：记录窗口内每次放行的时间戳，先剪除过期条目再判定。
//     精确执行滚动窗口语义，代价是 O(窗口容量) 内存和逐次剪枝。
//   - Unlimited：永远放行，用于在不改动调用点的前提下关闭限流。
//
// # 阻塞与取消
//
// Acquire 是唯一会主动阻塞的原语：等待期间响应 ctx 取消。
// 注意令牌桶的预约在等待开始前就已通过 CAS 提交，取消等待不会回滚预约
// （后续调用仍会看到这笔债务）。TryAcquire 永不阻塞。
//
// # 公平性
//
// 并发调用之间没有 FIFO 排队保证：每次 CAS 成功反映的是该瞬间的真实
// 剩余债务，许可既不会重复发放也不会丢失，但两个同时等待的调用
// 谁先被服务是不确定的。
package xrate
