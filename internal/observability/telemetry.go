package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used by scriptrunner packages.
const (
	RunnerTracer = "scriptrunner.runner"

	defaultServiceName = "scriptrunner"
	defaultEnvironment = "development"
)

// TelemetryConfig holds the configuration for OpenTelemetry tracing.
// Empty fields fall back to OTEL_SERVICE_NAME and OTEL_ENVIRONMENT, then to
// built-in defaults.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Version     string
	Commit      string
	Environment string
}

// TelemetryShutdown flushes pending run spans and restores the globals
// replaced by SetupTelemetry.
type TelemetryShutdown func(ctx context.Context) error

// TelemetryFromEnv builds the config used by the CLI. Tracing is enabled by
// OTEL_ENABLED; the exporter reads the standard OTEL_EXPORTER_OTLP_* variables.
func TelemetryFromEnv(version, commit string) *TelemetryConfig {
	return &TelemetryConfig{
		Enabled: IsTelemetryEnabled(),
		Version: version,
		Commit:  commit,
	}
}

// ResourceAttributes returns the resource attributes describing this
// scriptrunner instance.
func (c *TelemetryConfig) ResourceAttributes() []attribute.KeyValue {
	serviceName := firstNonEmpty(c.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), defaultServiceName)
	environment := firstNonEmpty(c.Environment, os.Getenv("OTEL_ENVIRONMENT"), defaultEnvironment)

	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.version", c.Version),
		attribute.String("deployment.environment", environment),
	}

	if c.Commit != "" {
		attrs = append(attrs, attribute.String("service.commit", c.Commit))
	}

	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, attribute.String("host.name", host))
	}

	return attrs
}

// otelGlobals is the process-wide OpenTelemetry state SetupTelemetry swaps.
type otelGlobals struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	errHandler otel.ErrorHandler
}

func captureGlobals() otelGlobals {
	return otelGlobals{
		provider:   otel.GetTracerProvider(),
		propagator: otel.GetTextMapPropagator(),
		errHandler: otel.GetErrorHandler(),
	}
}

func (g otelGlobals) restore() {
	otel.SetTracerProvider(g.provider)
	otel.SetTextMapPropagator(g.propagator)
	otel.SetErrorHandler(g.errHandler)
}

// SetupTelemetry exports run spans over OTLP/HTTP. When cfg is nil or
// disabled the globals are left untouched and run spans are noops.
func SetupTelemetry(ctx context.Context, cfg *TelemetryConfig) (TelemetryShutdown, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(cfg.ResourceAttributes()...))
	if err != nil {
		return noopShutdown, fmt.Errorf("merge otel resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("create otel exporter: %w", err)
	}

	saved := captureGlobals()
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	// Export failures must not reach the terminal the UI is drawing on.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))

	return func(shutdownCtx context.Context) error {
		defer saved.restore()

		if err := provider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown otel provider: %w", err)
		}

		return nil
	}, nil
}

// Tracer returns a named tracer from the global TracerProvider.
func Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// IsTelemetryEnabled checks the OTEL_ENABLED env var.
func IsTelemetryEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED")))
	return v == "1" || v == "true" || v == "yes"
}

// RunAttributes describe one script run.
type RunAttributes struct {
	RunID    string
	Path     string
	Elevated bool
}

// RunSpan traces one script run from admission to completion.
type RunSpan struct {
	span  trace.Span
	ended bool
}

// StartRun opens the span of a script run.
func StartRun(ctx context.Context, run RunAttributes) *RunSpan {
	_, span := Tracer(RunnerTracer).Start(ctx, "script.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("script.path", run.Path),
			attribute.String("run.id", run.RunID),
			attribute.Bool("script.elevated", run.Elevated),
		),
	)

	return &RunSpan{span: span}
}

// Started records the pid of the launched process.
func (r *RunSpan) Started(pid int) {
	r.span.SetAttributes(attribute.Int("process.pid", pid))
	r.span.AddEvent("process.started")
}

// RecordError attaches err to the run.
func (r *RunSpan) RecordError(err error) {
	if err != nil {
		r.span.RecordError(err)
	}
}

// End closes the span with the run outcome. exitCode is nil when the script
// never exited on its own. Later calls are ignored.
func (r *RunSpan) End(outcome string, success bool, exitCode *int) {
	if r.ended {
		return
	}

	r.ended = true

	r.span.SetAttributes(attribute.String("script.outcome", outcome))

	if exitCode != nil {
		r.span.SetAttributes(attribute.Int("script.exit_code", *exitCode))
	}

	if success {
		r.span.SetStatus(codes.Ok, "")
	} else {
		r.span.SetStatus(codes.Error, outcome)
	}

	r.span.End()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func noopShutdown(context.Context) error { return nil }
