package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the OTel meter and tracer used by the engine.
// A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	dispatchCount  otelmetric.Int64Counter
	notifyDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{tracer: otel.Tracer(serviceName)}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return newWithProvider(serviceName, provider)
}

func newWithProvider(serviceName string, provider *metric.MeterProvider) *Observability {
	meter := provider.Meter(serviceName)

	dispatchCount, _ := meter.Int64Counter(
		"automation.dispatches",
		otelmetric.WithDescription("Number of dispatch attempts"),
	)

	notifyDuration, _ := meter.Float64Histogram(
		"automation.notify.duration",
		otelmetric.WithDescription("Notifier call duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		tracer:         otel.Tracer(serviceName),
		dispatchCount:  dispatchCount,
		notifyDuration: notifyDuration,
	}
}

func (o *Observability) RecordDispatch(ctx context.Context, workflowType, status string) {
	if o == nil || o.dispatchCount == nil {
		return
	}
	o.dispatchCount.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("workflow_type", workflowType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordNotifyDuration(ctx context.Context, workflowType string, duration time.Duration) {
	if o == nil || o.notifyDuration == nil {
		return
	}
	o.notifyDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("workflow_type", workflowType),
	))
}

// StartSpan opens a span on the engine tracer. The returned end func must be called.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	tracer := otel.Tracer("automation-engine")
	if o != nil && o.tracer != nil {
		tracer = o.tracer
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
