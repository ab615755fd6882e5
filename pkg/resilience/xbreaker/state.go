package xbreaker

// State 熔断器状态
type State int

// 熔断器的三个状态。
const (
	// StateClosed 关闭（初始）状态：请求正常执行，失败被统计
	StateClosed State = iota

	// StateOpen 打开状态：请求不执行，直接以 ErrOpenState 快速失败
	StateOpen

	// StateHalfOpen 半开状态：放行有限数量的试探请求
	StateHalfOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats 熔断判定可见的统计信息
//
// 所有字段都来自同一个原子快照，不会混合两次更新的值。
// 统计在熔断器回到关闭状态时清零。
type Stats struct {
	// Requests 关闭状态下已记录的请求总数
	Requests uint32

	// TotalFailures 关闭状态下的累计失败数
	TotalFailures uint32

	// ConsecutiveFailures 连续失败数，任何一次成功都会清零
	ConsecutiveFailures uint32

	// FailureRateEMA 指数加权失败率，逐次更新：
	// ema = alpha × outcome + (1-alpha) × ema，失败 outcome=1，成功为 0
	FailureRateEMA float64
}

// breakerState 熔断器的不可变状态快照
//
// 状态机的每一次变更都是"读快照、算候选、CAS 替换"，
// 转换是线性化的：读者看到的永远是某次完整更新的结果。
type breakerState struct {
	phase State

	// gen 状态机纪元计数，每次状态转换递增。
	// 准入时记下纪元，落账时纪元不符的结果作废：
	// 同一个 HalfOpen 相位可能已经是另一轮试探（HalfOpen→Open→HalfOpen），
	// 仅比较相位无法识别跨纪元的旧结果。
	gen uint64

	requests            uint32
	totalFailures       uint32
	consecutiveFailures uint32
	ema                 float64

	// 半开状态的试探记账
	probes         uint32 // 在途试探数，受 halfOpenMaxCalls 约束
	probeSuccesses uint32

	// since 最近一次状态转换的时间戳（纳秒）
	since int64
}

func (s *breakerState) stats() Stats {
	return Stats{
		Requests:            s.requests,
		TotalFailures:       s.totalFailures,
		ConsecutiveFailures: s.consecutiveFailures,
		FailureRateEMA:      s.ema,
	}
}
