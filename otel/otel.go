// Package otel builds the Open Telemetry trace providers of page tracers.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "xk6-headless"

// Exporters of the trace providers.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlphttp"
)

// ErrUnsupportedExporter indicates that the requested exporter is not supported.
var ErrUnsupportedExporter = errors.New("unsupported exporter")

// TraceProvider provides methods for tracers initialization and shutdown of the
// processing pipeline.
type TraceProvider interface {
	trace.TracerProvider
	Shutdown(ctx context.Context) error
}

type traceProvShutdownFunc func(ctx context.Context) error

type traceProvider struct {
	trace.TracerProvider

	noop bool

	shutdown traceProvShutdownFunc
}

// Options configure a trace provider.
type Options struct {
	// Exporter is one of ExporterNone, ExporterStdout or ExporterOTLPHTTP.
	Exporter string `yaml:"exporter"`
	// Endpoint is the host:port of the OTLP collector.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// Output receives the spans of the stdout exporter. It defaults to
	// os.Stderr.
	Output io.Writer `yaml:"-"`
}

// NewTraceProvider creates a trace provider exporting the spans as
// configured by opts and sets it as the global provider.
func NewTraceProvider(ctx context.Context, opts Options) (TraceProvider, error) {
	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}
	if exporter == nil {
		return NewNoopTraceProvider(), nil
	}

	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource()),
	)

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}, nil
}

func newResource() *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(opts.Exporter) {
	case "", ExporterNone:
		return nil, nil //nolint:nilnil
	case ExporterStdout:
		w := opts.Output
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLPHTTP:
		return otlptrace.New(ctx, newHTTPClient(opts.Endpoint, opts.Insecure))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExporter, opts.Exporter)
	}
}

func newHTTPClient(endpoint string, insecure bool) otlptrace.Client {
	var opts []otlptracehttp.Option
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(opts...)
}

// NewNoopTraceProvider creates a new noop trace provider.
func NewNoopTraceProvider() TraceProvider {
	prov := noop.NewTracerProvider()

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		noop:           true,
	}
}

// Shutdown flushes the spans and shuts the provider down. After Shutdown is
// called, all methods are no-ops.
func (tp *traceProvider) Shutdown(ctx context.Context) error {
	if tp.noop {
		return nil
	}

	return tp.shutdown(ctx)
}
