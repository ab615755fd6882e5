package xrate

import (
	"testing"
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

// FuzzTokenBucket_Invariant 对任意的获取/推进序列验证桶边界不变量：
// 0 <= Available <= burst，且失败的 TryAcquire 不改变状态。
func FuzzTokenBucket_Invariant(f *testing.F) {
	f.Add(uint8(3), uint16(100), uint8(1))
	f.Add(uint8(1), uint16(0), uint8(7))
	f.Add(uint8(10), uint16(60000), uint8(0))

	f.Fuzz(func(t *testing.T, burst uint8, advanceMs uint16, n uint8) {
		b := int(burst)
		if b < 1 {
			b = 1
		}

		fake := xtick.NewFake(0)
		l, err := New(50.0, WithBurst(b), WithTicker(fake))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		for i := 0; i < 8; i++ {
			l.TryAcquire(int(n))
			fake.Advance(time.Duration(advanceMs) * time.Millisecond)

			got := l.Available()
			if got < 0 || got > float64(b) {
				t.Fatalf("Available() = %v, outside [0, %d]", got, b)
			}
			if l.EstimatedWait() < 0 {
				t.Fatal("EstimatedWait() must not be negative")
			}
		}
	})
}

// FuzzWindowCapacity 验证窗口配额推导永不小于 1 且不溢出为负。
func FuzzWindowCapacity(f *testing.F) {
	f.Add(1.0, int64(time.Second))
	f.Add(0.001, int64(time.Millisecond))
	f.Add(1e6, int64(time.Hour))

	f.Fuzz(func(t *testing.T, rate float64, windowNs int64) {
		if rate <= 0 || windowNs <= 0 {
			t.Skip()
		}
		got := windowCapacity(rate, time.Duration(windowNs))
		if got < 1 {
			t.Fatalf("windowCapacity(%v, %v) = %d, want >= 1", rate, windowNs, got)
		}
	})
}
