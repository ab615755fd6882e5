package xrate

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/gatekit/pkg/clock/xtick"
)

func newBucketForTest(t *testing.T, rate float64, burst int, tk xtick.Ticker) Limiter {
	t.Helper()
	l, err := New(rate, WithBurst(burst), WithTicker(tk))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestTokenBucket_BurstThenExhaustion(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 1.0, 5, fake)

	// 桶初始为满：五次立即 TryAcquire 全部成功
	for i := 0; i < 5; i++ {
		if !l.TryAcquire(1) {
			t.Fatalf("TryAcquire %d should succeed within burst", i+1)
		}
	}

	// 第六次立即调用失败
	if l.TryAcquire(1) {
		t.Fatal("TryAcquire beyond burst should fail")
	}
}

func TestTokenBucket_RefillOverTime(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 1.0, 5, fake)

	for i := 0; i < 5; i++ {
		l.TryAcquire(1)
	}
	if l.TryAcquire(1) {
		t.Fatal("bucket should be empty")
	}

	// 推进 2 秒：补充 2 个许可
	fake.Advance(2 * time.Second)
	if !l.TryAcquire(1) {
		t.Fatal("permit should have accrued after 2s")
	}
	if !l.TryAcquire(1) {
		t.Fatal("second permit should have accrued")
	}
	if l.TryAcquire(1) {
		t.Fatal("only 2 permits should have accrued")
	}
}

func TestTokenBucket_RefillCappedAtBurst(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 10.0, 3, fake)

	// 长时间空闲后也只能积累 burst 个许可
	fake.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if !l.TryAcquire(1) {
			t.Fatalf("TryAcquire %d should succeed", i+1)
		}
	}
	if l.TryAcquire(1) {
		t.Fatal("stored permits must be capped at burst")
	}
}

func TestTokenBucket_SteadyRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	// rate=10：首次近乎立即，其后每次间隔约 100ms
	l, err := New(10.0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := l.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("Acquire %d failed: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 350*time.Millisecond {
		t.Fatalf("5 sequential acquires took %v, want >= 350ms", elapsed)
	}
}

func TestTokenBucket_AcquireReportsWait(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 10.0, 1, fake)

	// 首次消耗存量，无等待
	wait, err := l.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if wait != 0 {
		t.Fatalf("first acquire wait = %v, want 0", wait)
	}

	// 第二次预支未来：等待一个完整间隔
	wait, err = l.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if wait != 100*time.Millisecond {
		t.Fatalf("second acquire wait = %v, want 100ms", wait)
	}
}

func TestTokenBucket_NegativePermits(t *testing.T) {
	l := newBucketForTest(t, 1.0, 1, xtick.NewFake(0))

	if _, err := l.Acquire(context.Background(), -1); err != ErrNegativePermits {
		t.Fatalf("Acquire(-1) err = %v, want ErrNegativePermits", err)
	}
	if l.TryAcquire(-1) {
		t.Fatal("TryAcquire(-1) must return false")
	}
}

func TestTokenBucket_ZeroPermits(t *testing.T) {
	l := newBucketForTest(t, 1.0, 1, xtick.NewFake(0))

	wait, err := l.Acquire(context.Background(), 0)
	if err != nil || wait != 0 {
		t.Fatalf("Acquire(0) = (%v, %v), want (0, nil)", wait, err)
	}
	if !l.TryAcquire(0) {
		t.Fatal("TryAcquire(0) must return true")
	}
}

func TestTokenBucket_AcquireCancelled(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 1.0, 1, fake)

	l.TryAcquire(1) // 清空存量

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 预支 1 秒的债务，等待会先被取消
	_, err := l.Acquire(ctx, 1)
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	// 取消不回滚预约：债务仍在，立即 TryAcquire 失败
	if l.TryAcquire(1) {
		t.Fatal("reservation must survive cancellation")
	}
}

func TestTokenBucket_TryAcquireNoMutationOnFailure(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 1.0, 2, fake)

	before := l.Available()
	if l.TryAcquire(5) {
		t.Fatal("TryAcquire beyond burst should fail")
	}
	if after := l.Available(); after != before {
		t.Fatalf("failed TryAcquire mutated state: %v -> %v", before, after)
	}
}

func TestTokenBucket_Observability(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 2.0, 4, fake)

	if got := l.Rate(); got != 2.0 {
		t.Fatalf("Rate() = %v, want 2", got)
	}
	if got := l.Available(); got != 4.0 {
		t.Fatalf("Available() = %v, want 4", got)
	}
	if got := l.EstimatedWait(); got != 0 {
		t.Fatalf("EstimatedWait() = %v, want 0 while permits stored", got)
	}

	for i := 0; i < 4; i++ {
		l.TryAcquire(1)
	}
	// 桶空：下一个许可需等待一个间隔（500ms）
	if got := l.EstimatedWait(); got != 500*time.Millisecond {
		t.Fatalf("EstimatedWait() = %v, want 500ms", got)
	}
}

// 桶边界不变量：任何调用序列后 0 <= Available <= burst。
func TestTokenBucket_BoundInvariant(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 100.0, 10, fake)

	steps := []func(){
		func() { l.TryAcquire(3) },
		func() { l.TryAcquire(20) },
		func() { fake.Advance(37 * time.Millisecond) },
		func() { _, _ = l.Acquire(context.Background(), 2) },
		func() { fake.Advance(time.Second) },
		func() { l.TryAcquire(10) },
		func() { fake.Advance(time.Minute) },
	}
	for i, step := range steps {
		step()
		got := l.Available()
		if got < 0 || got > 10 {
			t.Fatalf("step %d: Available() = %v, outside [0, 10]", i, got)
		}
	}
}

// 并发 TryAcquire 不会重复发放或丢失许可：
// 时间冻结时，成功总数不超过 burst。
func TestTokenBucket_ConcurrentNoOverissue(t *testing.T) {
	fake := xtick.NewFake(0)
	l := newBucketForTest(t, 1.0, 100, fake)

	var granted int64
	g := new(errgroup.Group)
	counts := make([]int64, 8)
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				if l.TryAcquire(1) {
					counts[i]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for _, c := range counts {
		granted += c
	}

	if granted != 100 {
		t.Fatalf("granted = %d, want exactly 100 (burst) with frozen clock", granted)
	}
}
