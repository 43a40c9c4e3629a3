package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	stepSubmissions    metric.Int64Counter
	stepValidations    metric.Int64Counter
	energyTransactions metric.Int64Counter
	cacheRequests      metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "walking"
	}
	meter := provider.Meter(name)

	stepSubmissions, err := meter.Int64Counter("walking_step_submissions_total")
	if err != nil {
		return nil, err
	}
	stepValidations, err := meter.Int64Counter("walking_step_validations_total")
	if err != nil {
		return nil, err
	}
	energyTransactions, err := meter.Int64Counter("walking_energy_transactions_total")
	if err != nil {
		return nil, err
	}
	cacheRequests, err := meter.Int64Counter("walking_cache_requests_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("walking_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stepSubmissions:    stepSubmissions,
		stepValidations:    stepValidations,
		energyTransactions: energyTransactions,
		cacheRequests:      cacheRequests,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordStepSubmission increments accepted step submission counts.
func (m *Metrics) RecordStepSubmission(ctx context.Context) {
	if m == nil {
		return
	}
	m.stepSubmissions.Add(ctx, 1)
}

// RecordStepValidation increments validation outcome counts.
func (m *Metrics) RecordStepValidation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.stepValidations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEnergyTransaction increments ledger transaction counts.
func (m *Metrics) RecordEnergyTransaction(ctx context.Context, txType, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("type", strings.TrimSpace(txType)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.energyTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheRequest increments cache hit/miss/error counts per cache name.
func (m *Metrics) RecordCacheRequest(ctx context.Context, cache, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("cache", strings.TrimSpace(cache)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.cacheRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"result":      {},
	"type":        {},
	"source":      {},
	"cache":       {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
