package xguard

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/gatekit/pkg/config/xconf"
	"github.com/omeyang/gatekit/pkg/resilience/xbreaker"
	"github.com/omeyang/gatekit/pkg/resilience/xrate"
	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

// Config 防护链声明式配置
//
// 三个环节都是可选的；nil 表示该环节不启用。
type Config struct {
	// Name 防护链名称，用于日志和指标标识
	Name string `json:"name" yaml:"name" koanf:"name"`

	// Limiter 限流配置
	Limiter *LimiterConfig `json:"limiter" yaml:"limiter" koanf:"limiter"`

	// Breaker 熔断配置
	Breaker *BreakerConfig `json:"breaker" yaml:"breaker" koanf:"breaker"`

	// Retry 重试配置
	Retry *RetryConfig `json:"retry" yaml:"retry" koanf:"retry"`
}

// LimiterConfig 限流环节配置
type LimiterConfig struct {
	// Rate 每秒许可数
	Rate float64 `json:"rate" yaml:"rate" koanf:"rate"`

	// Burst 突发容量（令牌桶），默认为 1
	Burst int `json:"burst" yaml:"burst" koanf:"burst"`

	// Algorithm 限流算法：token_bucket / fixed_window / sliding_window / unlimited
	// 默认 token_bucket
	Algorithm string `json:"algorithm" yaml:"algorithm" koanf:"algorithm"`

	// Window 窗口算法的窗口长度，默认 1s
	Window time.Duration `json:"window" yaml:"window" koanf:"window"`

	// Wait 许可不足时是否阻塞等待，默认 false（立即返回 LimitError）
	Wait bool `json:"wait" yaml:"wait" koanf:"wait"`

	// Permits 每次操作消耗的许可数，默认 1
	Permits int `json:"permits" yaml:"permits" koanf:"permits"`
}

// BreakerConfig 熔断环节配置
type BreakerConfig struct {
	// MaxFailures 连续失败熔断阈值，0 表示不使用连续失败策略
	MaxFailures uint32 `json:"max_failures" yaml:"max_failures" koanf:"max_failures"`

	// FailureRate 失败率 EMA 熔断阈值（0-1），0 表示不使用失败率策略
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate" koanf:"failure_rate"`

	// MinRequests 失败率策略的最小请求数门槛
	MinRequests uint32 `json:"min_requests" yaml:"min_requests" koanf:"min_requests"`

	// EMAAlpha 失败率 EMA 平滑系数（0-1），默认 0.1
	EMAAlpha float64 `json:"ema_alpha" yaml:"ema_alpha" koanf:"ema_alpha"`

	// RecoveryTimeout 从打开到半开的恢复超时，默认 60s
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" koanf:"recovery_timeout"`

	// HalfOpenMaxCalls 半开状态的最大在途试探数，默认 1
	HalfOpenMaxCalls uint32 `json:"half_open_max_calls" yaml:"half_open_max_calls" koanf:"half_open_max_calls"`

	// SuccessThreshold 半开恢复所需连续成功数，默认 1
	SuccessThreshold uint32 `json:"success_threshold" yaml:"success_threshold" koanf:"success_threshold"`
}

// RetryConfig 重试环节配置
type RetryConfig struct {
	// MaxRetry 首次失败后的最大重试次数
	MaxRetry int `json:"max_retry" yaml:"max_retry" koanf:"max_retry"`

	// InitialDelay 首次退避延迟，默认 100ms
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay" koanf:"initial_delay"`

	// MaxDelay 退避延迟上限，默认 30s
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" koanf:"max_delay"`

	// Multiplier 退避乘数，默认 2.0
	Multiplier float64 `json:"multiplier" yaml:"multiplier" koanf:"multiplier"`

	// Jitter 抖动模式：none / full / bounded，默认 bounded
	Jitter string `json:"jitter" yaml:"jitter" koanf:"jitter"`
}

// Validate 验证配置是否有效
func (c Config) Validate() error {
	if c.Limiter != nil {
		if err := c.Limiter.validate(); err != nil {
			return fmt.Errorf("limiter: %w", err)
		}
	}
	if c.Breaker != nil {
		if err := c.Breaker.validate(); err != nil {
			return fmt.Errorf("breaker: %w", err)
		}
	}
	if c.Retry != nil {
		if err := c.Retry.validate(); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}
	return nil
}

func (c LimiterConfig) validate() error {
	algo := c.algorithm()
	if !algo.IsValid() {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	if algo != xrate.Unlimited {
		if c.Rate <= 0 {
			return fmt.Errorf("rate must be positive, got %v", c.Rate)
		}
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst cannot be negative, got %d", c.Burst)
	}
	if c.Window < 0 {
		return fmt.Errorf("window cannot be negative, got %v", c.Window)
	}
	if c.Permits < 0 {
		return fmt.Errorf("permits cannot be negative, got %d", c.Permits)
	}
	return nil
}

func (c LimiterConfig) algorithm() xrate.Algorithm {
	if c.Algorithm == "" {
		return xrate.TokenBucket
	}
	return xrate.Algorithm(c.Algorithm)
}

func (c BreakerConfig) validate() error {
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("failure_rate must be in [0, 1], got %v", c.FailureRate)
	}
	if c.EMAAlpha < 0 || c.EMAAlpha > 1 {
		return fmt.Errorf("ema_alpha must be in [0, 1], got %v", c.EMAAlpha)
	}
	if c.RecoveryTimeout < 0 {
		return fmt.Errorf("recovery_timeout cannot be negative, got %v", c.RecoveryTimeout)
	}
	if c.MaxFailures == 0 && c.FailureRate == 0 {
		return fmt.Errorf("at least one of max_failures or failure_rate must be set")
	}
	return nil
}

func (c RetryConfig) validate() error {
	if c.MaxRetry < 0 {
		return fmt.Errorf("max_retry cannot be negative, got %d", c.MaxRetry)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", c.Multiplier)
	}
	switch c.Jitter {
	case "", "none", "full", "bounded":
		return nil
	default:
		return fmt.Errorf("unknown jitter mode %q", c.Jitter)
	}
}

func (c RetryConfig) jitterMode() xretry.JitterMode {
	switch c.Jitter {
	case "none":
		return xretry.JitterNone
	case "full":
		return xretry.JitterFull
	default:
		return xretry.JitterBounded
	}
}

// FromConfig 从声明式配置构建防护链
//
// 配置先经 Validate 校验。从配置构建的熔断器自动携带
// NewLimitTolerantPolicy，限流拒绝不会累积熔断失败统计。
// opts 在配置产物之后应用，可覆盖或补充各环节。
func FromConfig(cfg Config, meterProvider metric.MeterProvider, opts ...GuardOption) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xguard: invalid config: %w", err)
	}

	built := make([]GuardOption, 0, len(opts)+4)

	if lc := cfg.Limiter; lc != nil {
		limiter, err := buildLimiter(*lc)
		if err != nil {
			return nil, fmt.Errorf("xguard: build limiter: %w", err)
		}
		built = append(built, WithLimiter(limiter), WithLimiterWait(lc.Wait))
		if lc.Permits >= 1 {
			built = append(built, WithPermits(lc.Permits))
		}
	}

	if bc := cfg.Breaker; bc != nil {
		built = append(built, WithBreaker(buildBreaker(cfg.Name, *bc)))
	}

	if rc := cfg.Retry; rc != nil {
		built = append(built, WithRetryer(buildRetryer(*rc)))
	}

	built = append(built, opts...)
	return New(cfg.Name, meterProvider, built...)
}

// LoadConfig 从 xconf 加载指定路径下的防护链配置
//
// path 为空字符串时读取整个配置。返回的配置已通过 Validate。
func LoadConfig(cfg xconf.Config, path string) (Config, error) {
	var c Config
	if err := cfg.Unmarshal(path, &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("xguard: invalid config: %w", err)
	}
	return c, nil
}

func buildLimiter(c LimiterConfig) (xrate.Limiter, error) {
	opts := make([]xrate.Option, 0, 3)
	opts = append(opts, xrate.WithAlgorithm(c.algorithm()))
	if c.Burst > 0 {
		opts = append(opts, xrate.WithBurst(c.Burst))
	}
	if c.Window > 0 {
		opts = append(opts, xrate.WithWindow(c.Window))
	}

	rate := c.Rate
	if c.algorithm() == xrate.Unlimited && rate <= 0 {
		// Unlimited 不关心速率，给校验一个合法值
		rate = 1
	}
	return xrate.New(rate, opts...)
}

func buildBreaker(name string, c BreakerConfig) *xbreaker.Breaker {
	policies := make([]xbreaker.TripPolicy, 0, 2)
	if c.MaxFailures > 0 {
		policies = append(policies, xbreaker.NewConsecutiveFailures(c.MaxFailures))
	}
	if c.FailureRate > 0 {
		policies = append(policies, xbreaker.NewFailureRateEMA(c.FailureRate, c.MinRequests))
	}

	opts := make([]xbreaker.BreakerOption, 0, 6)
	switch len(policies) {
	case 1:
		opts = append(opts, xbreaker.WithTripPolicy(policies[0]))
	default:
		opts = append(opts, xbreaker.WithTripPolicy(xbreaker.NewComposite(policies...)))
	}

	opts = append(opts, xbreaker.WithSuccessPolicy(NewLimitTolerantPolicy()))
	if c.EMAAlpha > 0 {
		opts = append(opts, xbreaker.WithEMAAlpha(c.EMAAlpha))
	}
	if c.RecoveryTimeout > 0 {
		opts = append(opts, xbreaker.WithRecoveryTimeout(c.RecoveryTimeout))
	}
	if c.HalfOpenMaxCalls > 0 {
		opts = append(opts, xbreaker.WithHalfOpenMaxCalls(c.HalfOpenMaxCalls))
	}
	if c.SuccessThreshold > 0 {
		opts = append(opts, xbreaker.WithSuccessThreshold(c.SuccessThreshold))
	}

	return xbreaker.New(name, opts...)
}

func buildRetryer(c RetryConfig) *xretry.Retryer {
	backoffOpts := make([]xretry.ExponentialBackoffOption, 0, 4)
	if c.InitialDelay > 0 {
		backoffOpts = append(backoffOpts, xretry.WithInitialDelay(c.InitialDelay))
	}
	if c.MaxDelay > 0 {
		backoffOpts = append(backoffOpts, xretry.WithMaxDelay(c.MaxDelay))
	}
	if c.Multiplier >= 1 {
		backoffOpts = append(backoffOpts, xretry.WithMultiplier(c.Multiplier))
	}
	backoffOpts = append(backoffOpts, xretry.WithJitterMode(c.jitterMode()))

	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(c.MaxRetry)),
		xretry.WithBackoffPolicy(xretry.NewExponentialBackoff(backoffOpts...)),
	)
}
