package xguard

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/gatekit/pkg/resilience/xbreaker"
	"github.com/omeyang/gatekit/pkg/resilience/xretry"
)

// 指标名称常量
const (
	// metricNameRequestsTotal 请求总数计数器
	metricNameRequestsTotal = "xguard.requests.total"
	// metricNameRateLimitedTotal 被限流拒绝的请求计数器
	metricNameRateLimitedTotal = "xguard.rate_limited.total"
	// metricNameBreakerRejectedTotal 被熔断器拦截的请求计数器
	metricNameBreakerRejectedTotal = "xguard.breaker_rejected.total"
	// metricNameRetriesTotal 重试次数计数器
	metricNameRetriesTotal = "xguard.retries.total"
	// metricNameDuration 整条链路耗时直方图（含重试与退避等待）
	metricNameDuration = "xguard.duration"
)

// Metrics 防护链指标收集器
type Metrics struct {
	meter           metric.Meter
	requestsTotal   metric.Int64Counter
	rateLimited     metric.Int64Counter
	breakerRejected metric.Int64Counter
	retriesTotal    metric.Int64Counter
	duration        metric.Float64Histogram
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xguard",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	requestsTotal, err := meter.Int64Counter(
		metricNameRequestsTotal,
		metric.WithDescription("防护链请求总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		metricNameRateLimitedTotal,
		metric.WithDescription("被限流拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	breakerRejected, err := meter.Int64Counter(
		metricNameBreakerRejectedTotal,
		metric.WithDescription("被熔断器拦截的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	retriesTotal, err := meter.Int64Counter(
		metricNameRetriesTotal,
		metric.WithDescription("重试次数"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		metricNameDuration,
		metric.WithDescription("防护链整体耗时（含重试与退避）"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0,
		),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:           meter,
		requestsTotal:   requestsTotal,
		rateLimited:     rateLimited,
		breakerRejected: breakerRejected,
		retriesTotal:    retriesTotal,
		duration:        duration,
	}, nil
}

// RecordDo 记录一次完整的防护链调用
//
// name: 防护链名称
// err: 最终结果
// attempts: 实际执行的尝试次数（含首次）
// elapsed: 整条链路耗时
func (m *Metrics) RecordDo(ctx context.Context, name string, err error, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}

	// ctx 被取消后指标仍要记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("guard", name),
		attribute.String("outcome", outcome(err)),
	}

	m.requestsTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	if IsRateLimited(err) {
		m.rateLimited.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	}
	if xbreaker.IsBreakerError(err) {
		m.breakerRejected.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	}
	if attempts > 1 {
		m.retriesTotal.Add(metricsCtx, int64(attempts-1), metric.WithAttributes(attrs...))
	}
	m.duration.Record(metricsCtx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// outcome 把最终错误归类为指标维度
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsRateLimited(err):
		return "rate_limited"
	case xbreaker.IsBreakerError(err):
		return "breaker_rejected"
	case xretry.IsExhausted(err):
		return "exhausted"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
