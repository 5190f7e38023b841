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
	consultations      metric.Int64Counter
	creditTransactions metric.Int64Counter
	providerFailures   metric.Int64Counter
	renewals           metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "consultapj"
	}
	meter := provider.Meter(name)

	consultations, err := meter.Int64Counter("consultapj_consultations_total")
	if err != nil {
		return nil, err
	}
	creditTransactions, err := meter.Int64Counter("consultapj_credit_transactions_total")
	if err != nil {
		return nil, err
	}
	providerFailures, err := meter.Int64Counter("consultapj_provider_failures_total")
	if err != nil {
		return nil, err
	}
	renewals, err := meter.Int64Counter("consultapj_renewals_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		consultations:      consultations,
		creditTransactions: creditTransactions,
		providerFailures:   providerFailures,
		renewals:           renewals,
	}, nil
}

// RecordConsultation increments consultation counts by outcome status.
func (m *Metrics) RecordConsultation(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.consultations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditTransaction increments ledger write counts by kind.
func (m *Metrics) RecordCreditTransaction(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.creditTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderFailure increments upstream failure counts.
func (m *Metrics) RecordProviderFailure(ctx context.Context, provider, code string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("code", strings.TrimSpace(code)),
	)
	m.providerFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRenewal increments auto renewal attempts by outcome.
func (m *Metrics) RecordRenewal(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.renewals.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"status":   {},
	"kind":     {},
	"provider": {},
	"code":     {},
	"outcome":  {},
}

// filterAttributes strips disallowed labels to keep metrics low-cardinality.
func filterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
