package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// FixedBackoff 固定延迟退避策略
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff 创建固定延迟退避策略
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	if delay < 0 {
		delay = 0
	}
	return &FixedBackoff{delay: delay}
}

func (b *FixedBackoff) NextDelay(_ int) time.Duration {
	return b.delay
}

// ExponentialBackoff 指数退避策略
//
// 基础延迟 base = min(initialDelay * multiplier^(attempt-1), maxDelay)，
// 再按 JitterMode 施加抖动：
//   - JitterNone:    delay = base
//   - JitterFull:    delay ∈ [0, base)
//   - JitterBounded: delay ∈ [base/2, base)
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitterMode   JitterMode
}

// ExponentialBackoffOption 指数退避配置选项
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay 设置初始延迟。
// d <= 0 时静默忽略（保持默认值），与 WithMaxDelay/WithMultiplier 一致。
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay 设置最大延迟
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier 设置乘数因子（>= 1.0）
// 传入 1.0 表示固定延迟（无指数增长）。
// 小于 1.0 的值会被忽略（保持默认值 2.0）。
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitterMode 设置抖动模式
// 未知取值被忽略（保持默认值 JitterBounded）。
func WithJitterMode(m JitterMode) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m.IsValid() {
			b.jitterMode = m
		}
	}
}

// NewExponentialBackoff 创建指数退避策略
// 默认值：
//   - initialDelay: 100ms
//   - maxDelay: 30s
//   - multiplier: 2.0
//   - jitterMode: JitterBounded
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		jitterMode:   JitterBounded,
	}
	for _, opt := range opts {
		opt(b)
	}
	// 与 NewLinearBackoff 保持一致：确保 maxDelay >= initialDelay
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))

	// NaN 安全的上限限制。attempt 极大时 math.Pow 溢出为 +Inf，
	// 后续运算可能产生 NaN，而 NaN 的所有比较均返回 false，
	// 会绕过 maxDelay 检查。NaN/负数按退避已达上限处理。
	if math.IsNaN(base) || base < 0 || base >= float64(b.maxDelay) {
		base = float64(b.maxDelay)
	}

	switch b.jitterMode {
	case JitterFull:
		base *= randomFloat64()
	case JitterBounded:
		base = base/2 + base/2*randomFloat64()
	}

	return time.Duration(base)
}

// JitterMode 返回抖动模式
func (b *ExponentialBackoff) JitterMode() JitterMode {
	return b.jitterMode
}

// LinearBackoff 线性退避策略
// delay = min(initialDelay + increment * (attempt-1), maxDelay)
type LinearBackoff struct {
	initialDelay time.Duration
	increment    time.Duration
	maxDelay     time.Duration
}

// NewLinearBackoff 创建线性退避策略
func NewLinearBackoff(initialDelay, increment, maxDelay time.Duration) *LinearBackoff {
	if initialDelay < 0 {
		initialDelay = 0
	}
	if increment < 0 {
		increment = 0
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &LinearBackoff{
		initialDelay: initialDelay,
		increment:    increment,
		maxDelay:     maxDelay,
	}
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// 溢出前置检测：若 increment*(attempt-1) 必定超过可用余量，
	// 直接返回 maxDelay，避免 Duration 乘法溢出
	if b.increment > 0 && attempt > 1 {
		available := b.maxDelay - b.initialDelay
		if available < 0 {
			// 构造函数已保证 maxDelay >= initialDelay，
			// 此守卫保护绕过工厂直接构造的场景
			return b.maxDelay
		}
		if time.Duration(attempt-1) > available/b.increment {
			return b.maxDelay
		}
	}

	delay := b.initialDelay + b.increment*time.Duration(attempt-1)
	if delay > b.maxDelay {
		delay = b.maxDelay
	}
	return delay
}

// NoBackoff 无延迟退避策略
type NoBackoff struct{}

// NewNoBackoff 创建无延迟退避策略
func NewNoBackoff() *NoBackoff {
	return &NoBackoff{}
}

func (b *NoBackoff) NextDelay(_ int) time.Duration {
	return 0
}

// 确保实现了接口
var (
	_ BackoffPolicy = (*FixedBackoff)(nil)
	_ BackoffPolicy = (*ExponentialBackoff)(nil)
	_ BackoffPolicy = (*LinearBackoff)(nil)
	_ BackoffPolicy = (*NoBackoff)(nil)
)

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 返回 [0, 1) 内的均匀随机数
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时返回 0，即无抖动（安全默认值）
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
