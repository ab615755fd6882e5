package xretry

import (
	"errors"
	"fmt"
)

// ErrNilRetryer 接收者为 nil
var ErrNilRetryer = errors.New("xretry: retryer cannot be nil")

// ErrNilContext 上下文为 nil
var ErrNilContext = errors.New("xretry: context cannot be nil")

// ErrNilFunc 操作函数为 nil
var ErrNilFunc = errors.New("xretry: function cannot be nil")

// ErrExhausted 重试次数耗尽的 sentinel error
//
// ExhaustedError 通过 Is 方法与之匹配：
//
//	if errors.Is(err, xretry.ErrExhausted) { ... }
var ErrExhausted = errors.New("xretry: retry attempts exhausted")

// RetryableError 可重试错误接口
// 实现此接口的错误会被自动识别为可重试或不可重试
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// TemporaryError 临时性错误（应该重试）
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

// ExhaustedError 重试次数耗尽错误
//
// 当最后一次尝试仍然失败、且该失败本可以继续重试时返回，
// 携带总尝试次数和最后一次的原始错误。不可重试的失败
// （PermanentError、Classifier 拒绝、上下文取消）原样返回，
// 不做包装——它们不是"次数用完"，而是"不该再试"。
type ExhaustedError struct {
	Attempts int   // 实际执行的尝试次数（包含首次）
	Err      error // 最后一次尝试的错误
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap 返回最后一次尝试的原始错误
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrExhausted) 成立
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// IsExhausted 检查错误是否为重试次数耗尽
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// IsRetryable 检查错误是否可重试
// 规则：
//   - nil 错误：不需要重试（视为成功）
//   - 实现 RetryableError 接口：根据 Retryable() 返回值判断
//   - 其他错误：默认视为可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	// 默认：未知错误视为可重试
	return true
}

// IsPermanent 检查错误是否为永久性错误
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return !IsRetryable(err)
}
