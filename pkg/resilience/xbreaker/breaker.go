package xbreaker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

// admitMode 准入结果：请求以什么身份被放行
type admitMode int

const (
	admitClosed admitMode = iota // 关闭状态下的正常请求
	admitProbe                   // 半开状态下的试探请求
)

// Breaker 熔断器
//
// 三状态有限状态机（Closed / Open / HalfOpen），包裹一个可失败的操作：
//   - Closed：正常执行，按 SuccessPolicy 记录成败并更新统计，
//     失败后由 TripPolicy 判定是否转入 Open
//   - Open：恢复超时内直接以 ErrOpenState 快速失败（或调用降级函数）；
//     超时后自动转入 HalfOpen
//   - HalfOpen：最多放行 halfOpenMaxCalls 个在途试探，
//     连续 successThreshold 次成功回到 Closed，首次失败立刻回到 Open
//
// 全部状态保存在单个不可变快照中，更新走 CAS 重试循环，
// 状态转换是线性化的。单个实例可被多个 goroutine 共享，调用方无须加锁。
type Breaker struct {
	name             string
	tripPolicy       TripPolicy
	successPolicy    SuccessPolicy
	emaAlpha         float64
	recoveryTimeout  time.Duration
	halfOpenMax      uint32
	successThreshold uint32
	onStateChange    func(name string, from, to State)
	fallback         func(ctx context.Context, err error) error
	ticker           xtick.Ticker

	state atomic.Pointer[breakerState]
}

// BreakerOption 熔断器配置选项
type BreakerOption func(*Breaker)

// WithTripPolicy 设置熔断判定策略
//
// 默认策略：连续失败 5 次触发熔断。nil 会被静默忽略。
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithSuccessPolicy 设置成功判定策略
//
// 默认情况下 err == nil 即为成功。
func WithSuccessPolicy(p SuccessPolicy) BreakerOption {
	return func(b *Breaker) {
		b.successPolicy = p
	}
}

// WithEMAAlpha 设置失败率 EMA 的平滑系数（0 < alpha <= 1）
//
// 每次结果记录都执行 ema = alpha×outcome + (1-alpha)×ema。
// alpha 越大，越近的结果权重越高。越界的值被忽略（保持默认 0.1）。
func WithEMAAlpha(alpha float64) BreakerOption {
	return func(b *Breaker) {
		if alpha > 0 && alpha <= 1 {
			b.emaAlpha = alpha
		}
	}
}

// WithRecoveryTimeout 设置从 Open 自动转入 HalfOpen 的恢复超时
//
// 默认值：60 秒。
func WithRecoveryTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.recoveryTimeout = d
		}
	}
}

// WithHalfOpenMaxCalls 设置半开状态下允许的最大在途试探数
//
// 超出名额的请求以 ErrTooManyRequests 拒绝，不占用试探名额。
// 默认值：1。
func WithHalfOpenMaxCalls(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.halfOpenMax = n
		}
	}
}

// WithSuccessThreshold 设置半开回到关闭所需的连续试探成功数
//
// 默认值：1。
func WithSuccessThreshold(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithOnStateChange 设置状态变化回调
//
// 回调在完成状态转换的那次调用中同步执行，可用于日志、告警和指标。
// 回调内不应再调用同一个熔断器。
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// WithFallback 设置降级函数
//
// 配置后，熔断器拦截请求时不再返回 BreakerError，
// 而是调用降级函数并返回其结果；err 参数为被替换的拦截错误。
func WithFallback(f func(ctx context.Context, err error) error) BreakerOption {
	return func(b *Breaker) {
		b.fallback = f
	}
}

// WithTicker 注入时间源
//
// 默认使用 xtick.NewWall()。nil 会被静默忽略。
func WithTicker(tk xtick.Ticker) BreakerOption {
	return func(b *Breaker) {
		if tk != nil {
			b.ticker = tk
		}
	}
}

// New 创建熔断器
//
// name 用于日志和监控标识。默认配置：
//   - 熔断策略：连续失败 5 次
//   - 恢复超时：60 秒
//   - 半开最大在途试探数：1，试探成功 1 次即恢复
//   - EMA 平滑系数：0.1
func New(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:             name,
		tripPolicy:       NewConsecutiveFailures(5),
		emaAlpha:         0.1,
		recoveryTimeout:  60 * time.Second,
		halfOpenMax:      1,
		successThreshold: 1,
		ticker:           xtick.NewWall(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.state.Store(&breakerState{phase: StateClosed, since: b.ticker.Now()})
	return b
}

// Do 执行受熔断器保护的操作
//
// Open 状态且恢复超时未到时，操作不会被执行，直接返回包装为
// BreakerError 的 ErrOpenState（或调用降级函数）。超时已到则转入
// HalfOpen 并作为试探执行。HalfOpen 状态下超出试探名额的调用
// 返回 ErrTooManyRequests。
//
// 操作 panic 时记为一次失败后原样重新抛出。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mode, gen, rejected := b.admit()
	if rejected != nil {
		return b.reject(ctx, rejected)
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			b.record(mode, gen, false)
			panic(r)
		}
		b.record(mode, gen, b.IsSuccessful(err))
	}()

	err = fn()
	return err
}

// Execute 执行受熔断器保护的操作（泛型版本）
//
// 与 Do 相同的状态机语义，支持返回值。
// 包级函数而非方法，因为 Go 不支持方法的类型参数。
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	mode, gen, rejected := b.admit()
	if rejected != nil {
		return zero, b.reject(ctx, rejected)
	}

	var result T
	var err error
	defer func() {
		if r := recover(); r != nil {
			b.record(mode, gen, false)
			panic(r)
		}
		b.record(mode, gen, b.IsSuccessful(err))
	}()

	result, err = fn()
	return result, err
}

// admit 决定请求能否通过，必要时完成 Open→HalfOpen 转换
//
// 返回的 gen 是准入时刻的状态机纪元，落账时用于识别过期结果。
func (b *Breaker) admit() (admitMode, uint64, error) {
	for {
		cur := b.state.Load()

		switch cur.phase {
		case StateClosed:
			return admitClosed, cur.gen, nil

		case StateOpen:
			now := b.ticker.Now()
			if now-cur.since < b.recoveryTimeout.Nanoseconds() {
				return 0, 0, ErrOpenState
			}
			// 恢复超时已到：转入半开，本请求占用第一个试探名额
			next := &breakerState{phase: StateHalfOpen, probes: 1, since: now, gen: cur.gen + 1}
			if b.state.CompareAndSwap(cur, next) {
				b.notify(StateOpen, StateHalfOpen)
				return admitProbe, next.gen, nil
			}

		case StateHalfOpen:
			if cur.probes >= b.halfOpenMax {
				return 0, 0, ErrTooManyRequests
			}
			next := *cur
			next.probes++
			if b.state.CompareAndSwap(cur, &next) {
				return admitProbe, cur.gen, nil
			}
		}
	}
}

// reject 把拦截错误交给降级函数或包装为 BreakerError 返回
//
// BreakerError.State 从错误类型推导（Open 拦截 → StateOpen，
// 试探名额耗尽 → StateHalfOpen），不做实时 State() 查询，
// 避免拦截与读取之间状态已被并发转换的 TOCTOU 偏差。
func (b *Breaker) reject(ctx context.Context, cause error) error {
	state := StateOpen
	if cause == ErrTooManyRequests {
		state = StateHalfOpen
	}
	err := &BreakerError{Err: cause, Name: b.name, State: state}
	if b.fallback != nil {
		return b.fallback(ctx, err)
	}
	return err
}

// record 把操作结果记入状态机
//
// 结果所属的纪元与当前快照不符时（例如慢请求完成前熔断器已被
// 其他 goroutine 打开又转入半开），该结果作废丢弃：
// 它描述的是旧纪元的世界，不应污染新纪元的统计。
// 纪元每次状态转换都会递增，因此相同 gen 必然意味着相同相位。
func (b *Breaker) record(mode admitMode, gen uint64, success bool) {
	for {
		cur := b.state.Load()
		if cur.gen != gen {
			return
		}

		switch mode {
		case admitClosed:
			next := *cur
			next.requests++
			outcome := 0.0
			if !success {
				outcome = 1.0
			}
			next.ema = b.emaAlpha*outcome + (1-b.emaAlpha)*cur.ema
			if success {
				next.consecutiveFailures = 0
			} else {
				next.consecutiveFailures++
				next.totalFailures++
			}

			if !success && b.tripPolicy.ReadyToTrip(next.stats()) {
				open := &breakerState{phase: StateOpen, since: b.ticker.Now(), gen: cur.gen + 1}
				if b.state.CompareAndSwap(cur, open) {
					b.notify(StateClosed, StateOpen)
					return
				}
				continue
			}

			if b.state.CompareAndSwap(cur, &next) {
				return
			}

		case admitProbe:
			if !success {
				// 首次试探失败立刻回到 Open，丢弃已有的部分成功
				open := &breakerState{phase: StateOpen, since: b.ticker.Now(), gen: cur.gen + 1}
				if b.state.CompareAndSwap(cur, open) {
					b.notify(StateHalfOpen, StateOpen)
					return
				}
				continue
			}

			next := *cur
			if next.probes > 0 {
				next.probes--
			}
			next.probeSuccesses++

			if next.probeSuccesses >= b.successThreshold {
				closed := &breakerState{phase: StateClosed, since: b.ticker.Now(), gen: cur.gen + 1}
				if b.state.CompareAndSwap(cur, closed) {
					b.notify(StateHalfOpen, StateClosed)
					return
				}
				continue
			}

			if b.state.CompareAndSwap(cur, &next) {
				return
			}
		}
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State 返回熔断器当前状态
//
// Open→HalfOpen 的转换发生在下一次调用的准入阶段，
// State 只读取存储的状态，不触发转换。
func (b *Breaker) State() State {
	return b.state.Load().phase
}

// Stats 返回当前统计快照
func (b *Breaker) Stats() Stats {
	return b.state.Load().stats()
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// TripPolicy 返回当前熔断策略
func (b *Breaker) TripPolicy() TripPolicy {
	return b.tripPolicy
}

// IsSuccessful 判断操作结果是否成功
//
// 设置了自定义 SuccessPolicy 时使用它，否则默认 err == nil。
func (b *Breaker) IsSuccessful(err error) bool {
	if b.successPolicy != nil {
		return b.successPolicy.IsSuccessful(err)
	}
	return err == nil
}
