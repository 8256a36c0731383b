package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskpilot"

// Metrics holds all TaskPilot metric instruments.
type Metrics struct {
	IssuesProcessed metric.Int64Counter
	IssuesSkipped   metric.Int64Counter
	TasksCreated    metric.Int64Counter
	TriggerAttempts metric.Int64Counter
	TriggerFailures metric.Int64Counter
	QueueRetries    metric.Int64Counter
	DeadLettered    metric.Int64Counter
	IssueDuration   metric.Float64Histogram
	RunnerCost      metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.IssuesProcessed, err = meter.Int64Counter("taskpilot.issues.processed",
		metric.WithDescription("Issues fully processed"))
	if err != nil {
		return nil, err
	}

	m.IssuesSkipped, err = meter.Int64Counter("taskpilot.issues.skipped",
		metric.WithDescription("Issues skipped by dedup or lock contention"))
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("taskpilot.tasks.created",
		metric.WithDescription("Tasks created from issues"))
	if err != nil {
		return nil, err
	}

	m.TriggerAttempts, err = meter.Int64Counter("taskpilot.pipeline.trigger_attempts",
		metric.WithDescription("Pipeline trigger attempts including retries"))
	if err != nil {
		return nil, err
	}

	m.TriggerFailures, err = meter.Int64Counter("taskpilot.pipeline.trigger_failures",
		metric.WithDescription("Pipeline triggers that exhausted retries"))
	if err != nil {
		return nil, err
	}

	m.QueueRetries, err = meter.Int64Counter("taskpilot.queue.retries",
		metric.WithDescription("Dispatched messages requeued for retry"))
	if err != nil {
		return nil, err
	}

	m.DeadLettered, err = meter.Int64Counter("taskpilot.queue.dead_lettered",
		metric.WithDescription("Dispatched messages routed to the dead letter subject"))
	if err != nil {
		return nil, err
	}

	m.IssueDuration, err = meter.Float64Histogram("taskpilot.issue.duration_seconds",
		metric.WithDescription("End to end processing duration per issue"))
	if err != nil {
		return nil, err
	}

	m.RunnerCost, err = meter.Float64Histogram("taskpilot.runner.cost_usd",
		metric.WithDescription("Runner cost per session in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
