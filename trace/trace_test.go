package trace

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	l := logrus.New()
	l.SetOutput(io.Discard)

	return NewTracer(l, tp, map[string]string{"test.id": "123"}), sr
}

func TestTracerCommandsFollowNavigation(t *testing.T) {
	t.Parallel()

	tr, sr := newTestTracer(t)
	ctx := context.Background()

	_, span := tr.TraceCommand(ctx, "p1", "url")
	span.End()

	navCtx, _ := tr.TraceNavigation(ctx, "p1")
	_, span = tr.TraceCommand(ctx, "p1", "title")
	span.End()
	tr.AddEvent("p1", "console", attribute.String("level", "log"))
	tr.EndNavigation("p1")

	ended := sr.Ended()
	require.Len(t, ended, 3)

	assert.Equal(t, "url", ended[0].Name())
	assert.False(t, ended[0].Parent().IsValid())

	assert.Equal(t, "title", ended[1].Name())
	assert.Equal(t, GetTraceID(ended[2].SpanContext()), GetTraceID(ended[1].SpanContext()))
	assert.Equal(t, ended[2].SpanContext().SpanID(), ended[1].Parent().SpanID())

	nav := ended[2]
	assert.Equal(t, "navigation", nav.Name())
	assert.Contains(t, nav.Attributes(), attribute.String("test.id", "123"))
	require.Len(t, nav.Events(), 1)
	assert.Equal(t, "console", nav.Events()[0].Name)
	assert.NotNil(t, navCtx)
}

func TestTracerNavigationReplacesLiveSpan(t *testing.T) {
	t.Parallel()

	tr, sr := newTestTracer(t)
	ctx := context.Background()

	tr.TraceNavigation(ctx, "p1")
	tr.TraceNavigation(ctx, "p1")
	assert.Len(t, sr.Ended(), 1)

	tr.EndNavigation("p1")
	tr.EndNavigation("p1")
	assert.Len(t, sr.Ended(), 2)

	// events for pages without a live span are dropped
	tr.AddEvent("p2", "console")
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	tr := NewNoopTracer()
	_, span := tr.TraceCommand(context.Background(), "p1", "open")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
