package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// The noop implementations must satisfy the ports and never panic.
func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	var logger Logger = NewNoopLogger()
	logger.Debug(ctx, "msg", "k", "v")
	logger.Info(ctx, "msg")
	logger.Warn(ctx, "msg", "odd")
	logger.Error(ctx, "msg", 1, 2)

	var metrics Metrics = NewNoopMetrics()
	metrics.IncCounter("c", 1, "k", "v")
	metrics.RecordTimer("t", time.Second)

	var tracer Tracer = NewNoopTracer()
	spanCtx, span := tracer.Start(ctx, "op")
	if spanCtx != ctx {
		t.Fatal("noop tracer must not derive a new context")
	}
	span.SetStatus(codes.Ok, "done")
	span.RecordError(nil)
	span.End()
}
