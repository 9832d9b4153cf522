package executor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/meshflow/meshflow/engine/core"
)

const executorMetricPrefix = "meshflow_executor_"

var (
	executorMetricsOnce        sync.Once
	executorMetricsErr         error
	executionsStartedCounter   metric.Int64Counter
	executionsCompletedCounter metric.Int64Counter
	executionsFailedCounter    metric.Int64Counter
	nodeDurationHistogram      metric.Float64Histogram
)

var nodeDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

func ensureExecutorMetrics() {
	executorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("meshflow.executor")
		executorMetricsErr = initExecutorMetrics(meter)
	})
}

func initExecutorMetrics(meter metric.Meter) error {
	var err error
	executionsStartedCounter, err = meter.Int64Counter(
		executorMetricPrefix+"executions_started_total",
		metric.WithDescription("Workflow executions started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	executionsCompletedCounter, err = meter.Int64Counter(
		executorMetricPrefix+"executions_completed_total",
		metric.WithDescription("Workflow executions that completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	executionsFailedCounter, err = meter.Int64Counter(
		executorMetricPrefix+"executions_failed_total",
		metric.WithDescription("Workflow executions that aborted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	nodeDurationHistogram, err = meter.Float64Histogram(
		executorMetricPrefix+"node_duration_seconds",
		metric.WithDescription("Per-node execution duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(nodeDurationBuckets...),
	)
	if err != nil {
		return err
	}
	return nil
}

func recordExecutionStarted(ctx context.Context, mode Mode) {
	ensureExecutorMetrics()
	if executorMetricsErr != nil || executionsStartedCounter == nil {
		return
	}
	executionsStartedCounter.Add(
		executorMetricsContext(ctx), 1,
		metric.WithAttributes(attribute.String("mode", string(mode))),
	)
}

func recordExecutionFinished(ctx context.Context, status core.StatusType) {
	ensureExecutorMetrics()
	if executorMetricsErr != nil {
		return
	}
	ctx = executorMetricsContext(ctx)
	switch status {
	case core.StatusCompleted:
		if executionsCompletedCounter != nil {
			executionsCompletedCounter.Add(ctx, 1)
		}
	case core.StatusFailed:
		if executionsFailedCounter != nil {
			executionsFailedCounter.Add(ctx, 1)
		}
	}
}

func recordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, success bool) {
	ensureExecutorMetrics()
	if executorMetricsErr != nil || nodeDurationHistogram == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "completed"
	}
	nodeDurationHistogram.Record(
		executorMetricsContext(ctx),
		duration.Seconds(),
		metric.WithAttributes(
			attribute.String("node_type", nodeType),
			attribute.String("outcome", outcome),
		),
	)
}

func executorMetricsContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
