package xrate

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

// bucketState 令牌桶的不可变状态快照
//
// 不变量：0 <= stored <= burst；nextFree 跨更新单调不减。
// 快照只会被整体替换（CAS），任何字段都不会原地修改，
// 读者永远不会观测到混合了两次更新的状态。
type bucketState struct {
	// stored 当前积累的许可数
	stored float64
	// nextFree 下一次可以免等待发放许可的时间戳（纳秒）
	//
	// 大于当前时间时表示存在未清偿的债务：之前的 Acquire
	// 已经预支了未来的许可。
	nextFree int64
}

// tokenBucket 令牌桶限流器
//
// 许可以 rate 速率连续累积，上限为 burst。
// 状态更新走 CAS 重试循环：读当前快照、计算候选快照、原子替换、
// 竞争失败则整轮重做。不持有互斥锁，竞争退化为有界重试。
type tokenBucket struct {
	rate     float64
	burst    float64
	interval float64 // 每个许可的纳秒间隔 = 1e9 / rate
	ticker   xtick.Ticker
	state    atomic.Pointer[bucketState]
}

func newTokenBucket(rate float64, burst int, ticker xtick.Ticker) *tokenBucket {
	tb := &tokenBucket{
		rate:     rate,
		burst:    float64(burst),
		interval: float64(time.Second.Nanoseconds()) / rate,
		ticker:   ticker,
	}
	// 初始桶满：构造后立即允许 burst 次突发
	tb.state.Store(&bucketState{stored: float64(burst), nextFree: ticker.Now()})
	return tb
}

// reserve 预约 n 个许可，返回调用方还需等待的纳秒数
//
// 算法（CAS 重试循环内）：
//  1. 若 now 已越过 nextFree，按流逝时间补充许可（封顶 burst）；
//     仍在偿还旧债时不补充。
//  2. 先消耗积累的许可，不足部分按 interval 预支未来时间。
//  3. 新的 nextFree = max(now, 旧 nextFree) + 预支时长。
//  4. CAS 成功后，调用方需等待到自己的许可实际可用的时刻，
//     即此前并发调用已预约的债务加上自己的预支时长
//     max(0, 新 nextFree - now)；CAS 失败则整轮重试。
//
// 第 4 步是刻意为之：调用方等满自己的预支，而不是 Guava
// SmoothRateLimiter 那种只等旧债、把新债转嫁给下一个调用方的记账方式。
func (tb *tokenBucket) reserve(now int64, n int) int64 {
	for {
		cur := tb.state.Load()
		stored, nextFree := cur.stored, cur.nextFree

		if now > nextFree {
			stored = math.Min(tb.burst, stored+float64(now-nextFree)/tb.interval)
		}

		used := math.Min(stored, float64(n))
		fresh := float64(n) - used
		debit := int64(fresh * tb.interval)

		base := nextFree
		if now > nextFree {
			base = now
		}

		next := &bucketState{
			stored:   math.Max(0, stored-used),
			nextFree: base + debit,
		}

		if tb.state.CompareAndSwap(cur, next) {
			if wait := next.nextFree - now; wait > 0 {
				return wait
			}
			return 0
		}
	}
}

// Acquire 阻塞直到 n 个许可可用
//
// 预约在等待开始前就已通过 CAS 提交；等待被 ctx 取消时预约不回滚，
// 这笔债务仍会被后续调用看到。这是一个刻意的简化，换取无补偿 CAS
// 的实现复杂度。
func (tb *tokenBucket) Acquire(ctx context.Context, n int) (time.Duration, error) {
	if n < 0 {
		return 0, ErrNegativePermits
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	wait := time.Duration(tb.reserve(tb.ticker.Now(), n))
	if wait > 0 {
		if err := xtick.SleepContext(ctx, wait); err != nil {
			return wait, err
		}
	}
	return wait, nil
}

// TryAcquire 非阻塞获取 n 个许可
//
// 存在未清偿债务（nextFree > now）或补充后的许可不足 n 时直接失败，
// 失败路径不做任何状态变更。
func (tb *tokenBucket) TryAcquire(n int) bool {
	if n < 0 {
		return false
	}
	if n == 0 {
		return true
	}

	for {
		cur := tb.state.Load()
		now := tb.ticker.Now()

		if cur.nextFree > now {
			return false
		}

		stored := math.Min(tb.burst, cur.stored+float64(now-cur.nextFree)/tb.interval)
		if stored < float64(n) {
			return false
		}

		next := &bucketState{stored: stored - float64(n), nextFree: now}
		if tb.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Available 返回当前可用许可数的估计值
func (tb *tokenBucket) Available() float64 {
	cur := tb.state.Load()
	now := tb.ticker.Now()
	if now > cur.nextFree {
		return math.Min(tb.burst, cur.stored+float64(now-cur.nextFree)/tb.interval)
	}
	return cur.stored
}

// EstimatedWait 估计获取下一个单许可的等待时长
//
// 这是观测值：返回后状态可能已被并发调用改变，不能作为准入依据。
func (tb *tokenBucket) EstimatedWait() time.Duration {
	cur := tb.state.Load()
	now := tb.ticker.Now()

	stored := cur.stored
	var debt int64
	if now > cur.nextFree {
		stored = math.Min(tb.burst, stored+float64(now-cur.nextFree)/tb.interval)
	} else {
		debt = cur.nextFree - now
	}

	need := 1 - stored
	if need <= 0 {
		return time.Duration(debt)
	}
	return time.Duration(debt + int64(need*tb.interval))
}

// Rate 返回每秒许可数
func (tb *tokenBucket) Rate() float64 {
	return tb.rate
}

var _ Limiter = (*tokenBucket)(nil)
