package xrate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

// windowState 固定窗口的不可变状态快照
//
// 不变量：观测到同一窗口时 count <= capacity；时间跨入新窗口时清零。
type windowState struct {
	start int64 // 当前窗口起点（纳秒）
	count int64
}

// fixedWindow 固定窗口限流器
//
// 把时间按 window 切分为对齐窗口，窗口内计数，越界重置。
// 与令牌桶一样以 CAS 替换不可变快照，无锁。
//
// 已知特性：跨越窗口边界的滚动区间最多放行 2×capacity 个请求。
type fixedWindow struct {
	rate     float64
	capacity int64
	window   int64 // 纳秒
	ticker   xtick.Ticker
	state    atomic.Pointer[windowState]
}

func newFixedWindow(rate float64, window time.Duration, ticker xtick.Ticker) *fixedWindow {
	fw := &fixedWindow{
		rate:     rate,
		capacity: windowCapacity(rate, window),
		window:   window.Nanoseconds(),
		ticker:   ticker,
	}
	fw.state.Store(&windowState{start: ticker.Now()})
	return fw
}

// align 把窗口起点推进到包含 now 的那个窗口
func (fw *fixedWindow) align(start, now int64) int64 {
	if now-start < fw.window {
		return start
	}
	return start + (now-start)/fw.window*fw.window
}

func (fw *fixedWindow) TryAcquire(n int) bool {
	if n < 0 {
		return false
	}
	if n == 0 {
		return true
	}

	for {
		cur := fw.state.Load()
		now := fw.ticker.Now()

		start := fw.align(cur.start, now)
		count := cur.count
		if start != cur.start {
			count = 0
		}

		if count+int64(n) > fw.capacity {
			return false
		}

		next := &windowState{start: start, count: count + int64(n)}
		if fw.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (fw *fixedWindow) Acquire(ctx context.Context, n int) (time.Duration, error) {
	return acquireByPolling(ctx, fw, n, fw.capacity)
}

func (fw *fixedWindow) Available() float64 {
	cur := fw.state.Load()
	now := fw.ticker.Now()
	if fw.align(cur.start, now) != cur.start {
		return float64(fw.capacity)
	}
	return float64(fw.capacity - cur.count)
}

// EstimatedWait 估计下一个许可的等待时长：有余量时为 0，
// 否则为当前窗口结束的剩余时间。
func (fw *fixedWindow) EstimatedWait() time.Duration {
	cur := fw.state.Load()
	now := fw.ticker.Now()

	start := fw.align(cur.start, now)
	if start != cur.start || cur.count < fw.capacity {
		return 0
	}
	return time.Duration(start + fw.window - now)
}

func (fw *fixedWindow) Rate() float64 {
	return fw.rate
}

// slidingWindow 滑动窗口限流器
//
// 记录尾部 window 时长内每次放行的时间戳；准入前先剪除过期条目，
// 剩余条目数小于容量才放行。精确执行滚动窗口语义，
// 代价是 O(容量) 内存和逐次剪枝。
//
// 设计决策: 时间戳序列无法像标量快照那样廉价地做无锁整体替换，
// 这里退回互斥锁。锁内只有剪枝和追加，临界区是 O(容量) 的内存操作，
// 与令牌桶的 CAS 重试在同一数量级。
type slidingWindow struct {
	rate     float64
	capacity int64
	window   int64 // 纳秒
	ticker   xtick.Ticker

	mu     sync.Mutex
	stamps []int64 // 升序的放行时间戳
}

func newSlidingWindow(rate float64, window time.Duration, ticker xtick.Ticker) *slidingWindow {
	capacity := windowCapacity(rate, window)
	return &slidingWindow{
		rate:     rate,
		capacity: capacity,
		window:   window.Nanoseconds(),
		ticker:   ticker,
		stamps:   make([]int64, 0, capacity),
	}
}

// pruneLocked 剪除窗口之外的条目，保留满足 now-ts <= window 的时间戳
func (sw *slidingWindow) pruneLocked(now int64) {
	cut := 0
	for cut < len(sw.stamps) && now-sw.stamps[cut] > sw.window {
		cut++
	}
	if cut > 0 {
		sw.stamps = append(sw.stamps[:0], sw.stamps[cut:]...)
	}
}

func (sw *slidingWindow) TryAcquire(n int) bool {
	if n < 0 {
		return false
	}
	if n == 0 {
		return true
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.ticker.Now()
	sw.pruneLocked(now)

	if int64(len(sw.stamps))+int64(n) > sw.capacity {
		return false
	}
	for i := 0; i < n; i++ {
		sw.stamps = append(sw.stamps, now)
	}
	return true
}

func (sw *slidingWindow) Acquire(ctx context.Context, n int) (time.Duration, error) {
	return acquireByPolling(ctx, sw, n, sw.capacity)
}

func (sw *slidingWindow) Available() float64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.pruneLocked(sw.ticker.Now())
	return float64(sw.capacity - int64(len(sw.stamps)))
}

// EstimatedWait 估计下一个许可的等待时长：有余量时为 0，
// 否则为最老条目滑出窗口的剩余时间。
func (sw *slidingWindow) EstimatedWait() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.ticker.Now()
	sw.pruneLocked(now)

	if int64(len(sw.stamps)) < sw.capacity {
		return 0
	}
	return time.Duration(sw.stamps[0] + sw.window - now)
}

func (sw *slidingWindow) Rate() float64 {
	return sw.rate
}

// acquireByPolling 窗口算法的阻塞获取：循环尝试，失败则休眠到下一个
// 可能放行的时刻再试。休眠响应 ctx 取消。
//
// 窗口算法没有令牌桶那样的预约机制，轮询间隔由 EstimatedWait 给出，
// 多个等待者被唤醒后重新竞争，无 FIFO 保证。
// n 超过窗口容量的请求任何窗口都放不下，直接拒绝。
func acquireByPolling(ctx context.Context, l Limiter, n int, capacity int64) (time.Duration, error) {
	if n < 0 {
		return 0, ErrNegativePermits
	}
	if int64(n) > capacity {
		return 0, ErrPermitsExceedCapacity
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var waited time.Duration
	for {
		if l.TryAcquire(n) {
			return waited, nil
		}

		pause := l.EstimatedWait()
		if pause <= 0 {
			// 容量刚被并发释放又被抢走，稍作退让避免空转
			pause = time.Millisecond
		}
		if err := xtick.SleepContext(ctx, pause); err != nil {
			return waited, err
		}
		waited += pause
	}
}

var (
	_ Limiter = (*fixedWindow)(nil)
	_ Limiter = (*slidingWindow)(nil)
)
