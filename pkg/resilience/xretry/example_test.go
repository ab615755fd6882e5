package xretry_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

func ExampleNewRetryer() {
	r := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
	)

	var attempts int
	err := r.Do(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	fmt.Println("error:", err)
	fmt.Println("attempts:", attempts)
	// Output:
	// error: <nil>
	// attempts: 3
}

func ExampleNewRetryer_exhausted() {
	r := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(2)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
	)

	err := r.Do(context.Background(), func(_ context.Context) error {
		return errors.New("service unavailable")
	})

	fmt.Println("exhausted:", xretry.IsExhausted(err))
	fmt.Println(err)
	// Output:
	// exhausted: true
	// retry exhausted after 3 attempts: service unavailable
}

func ExampleWithClassifier() {
	errNotFound := errors.New("not found")

	r := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(5)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
		xretry.WithClassifier(func(err error) bool {
			// not found 无需重试
			return !errors.Is(err, errNotFound)
		}),
	)

	var attempts int
	err := r.Do(context.Background(), func(_ context.Context) error {
		attempts++
		return errNotFound
	})

	fmt.Println("attempts:", attempts)
	fmt.Println("error:", err)
	// Output:
	// attempts: 1
	// error: not found
}

func ExampleDoWithResult() {
	r := xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
	)

	result, err := xretry.DoWithResult(context.Background(), r, func(_ context.Context) (string, error) {
		return "hello", nil
	})

	fmt.Println("result:", result)
	fmt.Println("error:", err)
	// Output:
	// result: hello
	// error: <nil>
}
