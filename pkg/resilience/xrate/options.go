package xrate

import (
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

type options struct {
	burst     int
	algorithm Algorithm
	window    time.Duration
	ticker    xtick.Ticker
}

func defaultOptions() *options {
	return &options{
		burst:     1,
		algorithm: TokenBucket,
		window:    time.Second,
		ticker:    xtick.NewWall(),
	}
}

// Option 限流器配置选项
type Option func(*options)

// WithBurst 设置突发容量（令牌桶可累积的最大许可数）
//
// 默认值：1（严格按速率放行，无突发）。
// 小于 1 的值会在 New 中被拒绝，返回 ErrInvalidBurst。
func WithBurst(n int) Option {
	return func(o *options) {
		o.burst = n
	}
}

// WithAlgorithm 设置限流算法
//
// 默认值：TokenBucket。
func WithAlgorithm(a Algorithm) Option {
	return func(o *options) {
		if a != "" {
			o.algorithm = a
		}
	}
}

// WithWindow 设置窗口时长（仅 FixedWindow / SlidingWindow 使用）
//
// 窗口配额 = round(permitsPerSecond × 窗口秒数)，最小为 1。
// 默认值：1 秒。
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		o.window = d
	}
}

// WithTicker 注入时间源
//
// 默认使用 xtick.NewWall()。测试中注入 xtick.Fake 可确定性地推进时间。
// nil 会被静默忽略（保持默认值）。
func WithTicker(tk xtick.Ticker) Option {
	return func(o *options) {
		if tk != nil {
			o.ticker = tk
		}
	}
}
