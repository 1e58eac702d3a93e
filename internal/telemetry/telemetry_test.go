package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestDisabledInitYieldsNoopTracer(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	if IsEnabled() {
		t.Fatal("expected telemetry disabled")
	}

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()

	AddEvent(ctx, "checkpoint")
	RecordError(ctx, errors.New("boom"))

	if TraceID(ctx) != "" {
		t.Fatalf("expected empty trace id for no-op tracer, got %q", TraceID(ctx))
	}
}
