package xrate

import "errors"

// 构造参数校验错误，构造时返回，不会在运行期出现。
var (
	// ErrInvalidRate 表示 permitsPerSecond 不是正数
	ErrInvalidRate = errors.New("xrate: permits per second must be positive")

	// ErrInvalidBurst 表示突发容量小于 1
	ErrInvalidBurst = errors.New("xrate: burst size must be at least 1")

	// ErrInvalidWindow 表示窗口时长不是正数
	ErrInvalidWindow = errors.New("xrate: window duration must be positive")

	// ErrUnknownAlgorithm 表示算法标识无法识别
	ErrUnknownAlgorithm = errors.New("xrate: unknown algorithm")
)

// ErrNegativePermits 表示 Acquire 收到负的许可数
//
// 这是调用方的编程错误，不是限流结果。许可数为 0 合法（立即返回）。
var ErrNegativePermits = errors.New("xrate: permit count must not be negative")

// ErrPermitsExceedCapacity 表示单次请求的许可数超过了窗口容量
//
// 窗口算法的单个窗口最多放行 capacity 个许可，超过容量的请求
// 永远无法被满足，Acquire 直接拒绝而不是无望地等待。
var ErrPermitsExceedCapacity = errors.New("xrate: permit count exceeds window capacity")
