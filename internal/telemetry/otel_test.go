package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_None(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracer_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(context.Background(), Config{
		Exporter:    ExporterStdout,
		ServiceName: "quotagate-test",
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "enforcer.reserve")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "enforcer.reserve") {
		t.Errorf("expected exported span, got %q", buf.String())
	}
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	if _, err := InitTracer(context.Background(), Config{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error")
	}
}
