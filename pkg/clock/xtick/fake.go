package xtick

import (
	"sync"
	"time"
)

// Fake 手动推进的假时钟，用于确定性测试
//
// 并发安全：Now、Advance、Set 可从多个 goroutine 并发调用。
// 时间只能向前推进，向后的 Set 和负的 Advance 会被忽略，
// 保证 Ticker 的单调不减契约在测试中同样成立。
type Fake struct {
	mu  sync.Mutex
	now int64
}

// NewFake 创建假时钟，起始时间戳为 start 纳秒
func NewFake(start int64) *Fake {
	if start < 0 {
		start = 0
	}
	return &Fake{now: start}
}

// Now 返回当前时间戳
func (f *Fake) Now() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 将时钟向前推进 d
//
// d <= 0 时不改变时钟。返回推进后的时间戳。
func (f *Fake) Advance(d time.Duration) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now += d.Nanoseconds()
	}
	return f.now
}

// Set 将时钟设置为绝对时间戳 ns
//
// ns 小于当前时间戳时忽略（时间不回退）。返回生效后的时间戳。
func (f *Fake) Set(ns int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ns > f.now {
		f.now = ns
	}
	return f.now
}

var _ Ticker = (*Fake)(nil)
