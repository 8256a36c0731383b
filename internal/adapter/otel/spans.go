package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskpilot"

// StartIssueSpan starts a span covering the processing of one issue.
func StartIssueSpan(ctx context.Context, source, issueID, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "issue.process",
		trace.WithAttributes(
			attribute.String("issue.source", source),
			attribute.String("issue.id", issueID),
			attribute.String("project.id", projectID),
		),
	)
}

// StartTriggerSpan starts a span for a pipeline trigger attempt.
func StartTriggerSpan(ctx context.Context, sessionID, runnerType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline.trigger",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("runner.type", runnerType),
		),
	)
}

// StartConsumeSpan starts a span for handling one dispatched queue message.
func StartConsumeSpan(ctx context.Context, subject, correlationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "queue.consume",
		trace.WithAttributes(
			attribute.String("queue.subject", subject),
			attribute.String("correlation.id", correlationID),
		),
	)
}

// StartSyncSpan starts a span for a worker repository upload.
func StartSyncSpan(ctx context.Context, repositoryID, version string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "workerrepo.sync",
		trace.WithAttributes(
			attribute.String("workerrepo.id", repositoryID),
			attribute.String("workerrepo.version", version),
		),
	)
}
