package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/souschef/recipe-assistant/internal/config"
)

func preserveGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledCfg(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetup_DisabledIsNoOp(t *testing.T) {
	preserveGlobals(t)

	prev := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), config.OTELConfig{Enabled: false}, "v0")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatal("tracer provider replaced while disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
}

func TestSetup_InstallsProviderAndPropagator(t *testing.T) {
	preserveGlobals(t)

	shutdown, err := Setup(context.Background(), enabledCfg("relay-test"), "v1.0.0")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("tracer provider type = %T", otel.GetTracerProvider())
	}
	if fields := otel.GetTextMapPropagator().Fields(); len(fields) == 0 {
		t.Fatal("propagator has no fields")
	}

	_, span := otel.Tracer("smoke").Start(context.Background(), "root")
	span.End()
}

func TestSetup_TLSBranch(t *testing.T) {
	preserveGlobals(t)

	cfg := enabledCfg("relay-tls")
	cfg.Insecure = false
	shutdown, err := Setup(context.Background(), cfg, "v1")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetup_ExporterErrorLeavesGlobalsIntact(t *testing.T) {
	preserveGlobals(t)

	orig := newExporter
	defer func() { newExporter = orig }()
	newExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("exporter unavailable")
	}

	prevTP := otel.GetTracerProvider()
	if _, err := Setup(context.Background(), enabledCfg("relay-fail"), "v0"); err == nil {
		t.Fatal("Setup() succeeded, want exporter error")
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatal("tracer provider changed on failure")
	}
}

func TestSetup_ResourceErrorPropagates(t *testing.T) {
	preserveGlobals(t)

	orig := newServiceResource
	defer func() { newServiceResource = orig }()
	newServiceResource = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, errors.New("bad resource")
	}

	if _, err := Setup(context.Background(), enabledCfg("relay-res"), "v0"); err == nil {
		t.Fatal("Setup() succeeded, want resource error")
	}
}
