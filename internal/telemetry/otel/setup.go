// Package otel builds the OpenTelemetry trace, metric and log providers of the
// credential service, exporting over OTLP gRPC when a collector is configured.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

// DefaultMetricInterval is the export period used when Options.MetricInterval is zero.
const DefaultMetricInterval = 10 * time.Second

// Options configures NewProviders.
type Options struct {
	// Endpoint is the OTLP collector address. Empty disables export.
	Endpoint       string
	Insecure       bool
	ServiceName    string
	Environment    string
	MetricInterval time.Duration
	Logger         *zap.Logger
}

// Providers holds the trace, metric and log providers and their combined shutdown.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	// LoggerProvider carries audit records. It is only set when exporting.
	LoggerProvider *sdklog.LoggerProvider
	Exporting      bool

	shutdown []func(context.Context) error
	log      *zap.Logger
}

// Target is a parsed OTLP collector endpoint.
type Target struct {
	Host     string
	Insecure bool
}

// ParseEndpoint reduces endpoint to the host:port dialled by the exporters. A
// missing scheme means http; https uses TLS unless insecureOverride is set.
func ParseEndpoint(endpoint string, insecureOverride bool) (Target, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Target{}, errors.New("empty OTLP endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return Target{}, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return Target{Host: u.Host, Insecure: insecureOverride || u.Scheme != "https"}, nil
}

// NewProviders returns providers for opts. Without an endpoint the providers
// record in-process only and Shutdown is a no-op.
func NewProviders(ctx context.Context, opts Options) (*Providers, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	res, err := newResource(opts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  metric.NewMeterProvider(metric.WithResource(res)),
			log:            log,
		}, nil
	}
	target, err := ParseEndpoint(opts.Endpoint, opts.Insecure)
	if err != nil {
		return nil, err
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target.Host)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target.Host)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target.Host)}
	if target.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		_ = metricExp.Shutdown(ctx)
		return nil, fmt.Errorf("log exporter: %w", err)
	}

	interval := opts.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	p := &Providers{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		),
		MeterProvider: metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(interval))),
		),
		LoggerProvider: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
			sdklog.WithResource(res),
		),
		Exporting: true,
		log:       log,
	}
	p.shutdown = []func(context.Context) error{
		p.TracerProvider.Shutdown,
		p.MeterProvider.Shutdown,
		p.LoggerProvider.Shutdown,
	}
	log.Info("telemetry exporting", zap.String("endpoint", target.Host), zap.Bool("insecure", target.Insecure))
	return p, nil
}

func newResource(opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(opts.ServiceName)}
	if opts.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", opts.Environment))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// Shutdown flushes and stops the providers in reverse order of creation.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		if err := p.shutdown[i](ctx); err != nil {
			p.log.Warn("telemetry shutdown", zap.Error(err))
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

// SetGlobal installs the providers and the W3C trace-context propagator globally
// so otelgrpc picks them up.
func (p *Providers) SetGlobal() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}
