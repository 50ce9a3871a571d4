package observe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type kindError string

func (e kindError) Error() string     { return "tool failed: " + string(e) }
func (e kindError) ErrorKind() string { return string(e) }

func newRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestErrorType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"kinded", kindError("invalid_argument"), "invalid_argument"},
		{"wrapped kinded", fmt.Errorf("dispatch: %w", kindError("retriever_error")), "retriever_error"},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), "timeout"},
		{"cancelled", context.Canceled, "cancelled"},
		{"plain", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorType(tt.err); got != tt.want {
				t.Errorf("ErrorType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEndSpan_StatusCarriesTypeNotMessage(t *testing.T) {
	t.Parallel()
	tp, exp := newRecorder(t)

	_, span := tp.Tracer("test").Start(context.Background(), "dispatch.gini_coefficient")
	EndSpan(span, kindError("invalid_argument"))

	s := exp.GetSpans()[0]
	if s.Status.Code != codes.Error || s.Status.Description != "invalid_argument" {
		t.Errorf("status = %+v", s.Status)
	}
	if v, found := spanAttr(s, "error.type"); !found || v.AsString() != "invalid_argument" {
		t.Errorf("error.type = %v (found %v)", v.AsString(), found)
	}
	if len(s.Events) != 1 || s.Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception event", s.Events)
	}
}

func TestEndSpan_Success(t *testing.T) {
	t.Parallel()
	tp, exp := newRecorder(t)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	EndSpan(span, nil)

	s := exp.GetSpans()[0]
	if s.Status.Code != codes.Unset || len(s.Events) != 0 {
		t.Errorf("status = %+v, events = %d", s.Status, len(s.Events))
	}
}

func TestTraceID(t *testing.T) {
	t.Parallel()
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q", got)
	}

	tp, _ := newRecorder(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if got := TraceID(ctx); got != span.SpanContext().TraceID().String() {
		t.Errorf("TraceID = %q", got)
	}
}

// The tests below swap process-wide defaults and therefore do not run in
// parallel.

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newRecorder(t)
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	_, span := StartSpan(context.Background(), "retriever.search")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "retriever.search" {
		t.Fatalf("spans = %+v", spans)
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span has trace_id: %s", buf.String())
	}

	buf.Reset()
	tp, _ := newRecorder(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	Logger(ctx).Info("with span")

	out := buf.String()
	for _, want := range []string{
		"trace_id=" + span.SpanContext().TraceID().String(),
		"span_id=" + span.SpanContext().SpanID().String(),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
