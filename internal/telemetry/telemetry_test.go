package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), "content-search")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestSpansRecordErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, ok := StartSpan(context.Background(), "stage.ok", attribute.String("keyword", "조선소"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "stage.failed")
	EndSpan(failed, errors.New("upstream down"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("successful span must not carry an error status")
	}
	if len(spans[0].Attributes()) != 1 || spans[0].Attributes()[0].Value.AsString() != "조선소" {
		t.Fatalf("unexpected attributes %v", spans[0].Attributes())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "upstream down" {
		t.Fatalf("unexpected status %+v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatal("expected the error to be recorded as a span event")
	}
}
