package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentdeck"

// StartRunSpan starts a span covering one agent run lifecycle operation.
func StartRunSpan(ctx context.Context, op, projectID string, runID int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op,
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.Int64("run.id", runID),
		),
	)
}

// StartValidationSpan starts a span for one PR validation stage.
func StartValidationSpan(ctx context.Context, projectID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "validation."+stage,
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("validation.stage", stage),
		),
	)
}
