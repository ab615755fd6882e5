package xbreaker

// TripPolicy 熔断判定策略接口
//
// ReadyToTrip 在关闭状态下每次失败被记录后调用，
// 返回 true 时熔断器从 Closed 转换为 Open。
type TripPolicy interface {
	// ReadyToTrip 判断是否应该触发熔断
	// stats 是本次更新后的统计快照
	ReadyToTrip(stats Stats) bool
}

// SuccessPolicy 成功判定策略接口（可选）
//
// 默认情况下 err == nil 即为成功。某些场景需要自定义，
// 例如把超过耗时阈值的调用也视为失败。
type SuccessPolicy interface {
	// IsSuccessful 判断操作结果是否成功
	IsSuccessful(err error) bool
}

// ConsecutiveFailuresPolicy 连续失败熔断策略
//
// 连续失败次数达到阈值时触发熔断。这是默认策略，适用于大多数场景。
type ConsecutiveFailuresPolicy struct {
	threshold uint32
}

// NewConsecutiveFailures 创建连续失败熔断策略
//
// threshold: 触发熔断的连续失败次数，最小为 1。
//
// 示例:
//
//	policy := xbreaker.NewConsecutiveFailures(5)
//	// 连续失败 5 次后触发熔断
func NewConsecutiveFailures(threshold uint32) *ConsecutiveFailuresPolicy {
	if threshold < 1 {
		threshold = 1
	}
	return &ConsecutiveFailuresPolicy{threshold: threshold}
}

// ReadyToTrip 判断是否应该触发熔断
func (p *ConsecutiveFailuresPolicy) ReadyToTrip(stats Stats) bool {
	return stats.ConsecutiveFailures >= p.threshold
}

// Threshold 返回阈值
func (p *ConsecutiveFailuresPolicy) Threshold() uint32 {
	return p.threshold
}

// FailureRateEMAPolicy 指数加权失败率熔断策略
//
// 当失败率的指数移动平均超过阈值时触发熔断。
// 相比固定窗口的失败率统计，EMA 让越近的结果权重越高，
// 既能快速响应突发故障，又不会被久远的历史拖累。
// minRequests 防止冷启动阶段的少量失败直接触发熔断。
type FailureRateEMAPolicy struct {
	threshold   float64
	minRequests uint32
}

// NewFailureRateEMA 创建指数加权失败率熔断策略
//
// threshold: 失败率阈值 (0.0 - 1.0)，例如 0.5 表示 50%
// minRequests: 最小请求数，样本不足时不触发
//
// EMA 的平滑系数 alpha 属于熔断器本身（更新统计的一方），
// 通过 xbreaker.WithEMAAlpha 配置。
func NewFailureRateEMA(threshold float64, minRequests uint32) *FailureRateEMAPolicy {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &FailureRateEMAPolicy{
		threshold:   threshold,
		minRequests: minRequests,
	}
}

// ReadyToTrip 判断是否应该触发熔断
func (p *FailureRateEMAPolicy) ReadyToTrip(stats Stats) bool {
	if stats.Requests == 0 || stats.Requests < p.minRequests {
		return false
	}
	return stats.FailureRateEMA >= p.threshold
}

// Threshold 返回失败率阈值
func (p *FailureRateEMAPolicy) Threshold() float64 {
	return p.threshold
}

// MinRequests 返回最小请求数
func (p *FailureRateEMAPolicy) MinRequests() uint32 {
	return p.minRequests
}

// CompositePolicy 组合熔断策略：任一子策略满足即触发
type CompositePolicy struct {
	policies []TripPolicy
}

// NewComposite 创建组合熔断策略，nil 策略会被自动过滤
//
// 示例:
//
//	policy := xbreaker.NewComposite(
//	    xbreaker.NewConsecutiveFailures(5),
//	    xbreaker.NewFailureRateEMA(0.5, 10),
//	)
func NewComposite(policies ...TripPolicy) *CompositePolicy {
	filtered := make([]TripPolicy, 0, len(policies))
	for _, p := range policies {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &CompositePolicy{policies: filtered}
}

// ReadyToTrip 任一子策略返回 true 即触发熔断
func (p *CompositePolicy) ReadyToTrip(stats Stats) bool {
	for _, policy := range p.policies {
		if policy.ReadyToTrip(stats) {
			return true
		}
	}
	return false
}

// NeverTripPolicy 永不熔断策略，用于测试或显式关闭熔断
type NeverTripPolicy struct{}

// NewNeverTrip 创建永不熔断策略
func NewNeverTrip() *NeverTripPolicy {
	return &NeverTripPolicy{}
}

// ReadyToTrip 永远返回 false
func (p *NeverTripPolicy) ReadyToTrip(_ Stats) bool {
	return false
}

// 确保实现了 TripPolicy 接口
var (
	_ TripPolicy = (*ConsecutiveFailuresPolicy)(nil)
	_ TripPolicy = (*FailureRateEMAPolicy)(nil)
	_ TripPolicy = (*CompositePolicy)(nil)
	_ TripPolicy = (*NeverTripPolicy)(nil)
)
