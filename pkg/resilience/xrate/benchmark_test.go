package xrate

import (
	"testing"
	"time"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

func BenchmarkTokenBucket_TryAcquire(b *testing.B) {
	l, _ := New(1e9, WithBurst(1<<30))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TryAcquire(1)
	}
}

func BenchmarkTokenBucket_TryAcquireParallel(b *testing.B) {
	l, _ := New(1e9, WithBurst(1<<30))
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			l.TryAcquire(1)
		}
	})
}

func BenchmarkFixedWindow_TryAcquire(b *testing.B) {
	l, _ := New(1e9, WithAlgorithm(FixedWindow), WithWindow(time.Second))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TryAcquire(1)
	}
}

func BenchmarkSlidingWindow_TryAcquire(b *testing.B) {
	fake := xtick.NewFake(0)
	l, _ := New(1000, WithAlgorithm(SlidingWindow), WithWindow(time.Second), WithTicker(fake))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TryAcquire(1)
		fake.Advance(time.Millisecond)
	}
}

func BenchmarkUnlimited_TryAcquire(b *testing.B) {
	l := NewUnlimited()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.TryAcquire(1)
	}
}
