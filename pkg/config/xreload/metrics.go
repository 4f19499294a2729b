package xreload

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	MetricReloadTotal    = "xreload.reload.total"
	MetricReloadDuration = "xreload.reload.duration"
	MetricGeneration     = "xreload.generation"
)

// 指标属性键
const (
	attrProxy   = "xreload.proxy"
	attrStatus  = "xreload.status"
	attrTrigger = "xreload.trigger"
)

// 重建结果
const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusSkipped = "skipped"
)

// 重建触发来源
const (
	triggerChange = "change"
	triggerForce  = "force"
)

// Metrics 热重载指标收集器
type Metrics struct {
	reloadTotal    metric.Int64Counter
	reloadDuration metric.Float64Histogram
	generation     metric.Int64Gauge
}

// NewMetrics 创建指标收集器
//
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xreload",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	reloadTotal, err := meter.Int64Counter(
		MetricReloadTotal,
		metric.WithDescription("Total number of reload attempts"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reload counter: %w", err)
	}

	reloadDuration, err := meter.Float64Histogram(
		MetricReloadDuration,
		metric.WithDescription("Duration of instance rebuilds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create reload duration histogram: %w", err)
	}

	generation, err := meter.Int64Gauge(
		MetricGeneration,
		metric.WithDescription("Generation of the current instance"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation gauge: %w", err)
	}

	return &Metrics{
		reloadTotal:    reloadTotal,
		reloadDuration: reloadDuration,
		generation:     generation,
	}, nil
}

// RecordReload 记录一次重建尝试。跳过的重建不记录耗时。
func (m *Metrics) RecordReload(ctx context.Context, proxy, trigger, status string, duration time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String(attrProxy, proxy),
		attribute.String(attrTrigger, trigger),
		attribute.String(attrStatus, status),
	)
	m.reloadTotal.Add(ctx, 1, attrs)
	if status != statusSkipped {
		m.reloadDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordGeneration 记录当前实例的代数。
func (m *Metrics) RecordGeneration(ctx context.Context, proxy string, generation uint64) {
	if m == nil {
		return
	}
	m.generation.Record(context.WithoutCancel(ctx), int64(generation), //nolint:gosec // 代数不会超过 int64
		metric.WithAttributes(attribute.String(attrProxy, proxy)))
}
