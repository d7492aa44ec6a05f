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

// Metrics exposes entitlement-engine instruments.
type Metrics struct {
	leadsConsumed   metric.Int64Counter
	leadLimitDenied metric.Int64Counter
	accessDenied    metric.Int64Counter
	bidsCommitted   metric.Int64Counter
	bidsCompensated metric.Int64Counter
	upgrades        metric.Int64Counter
	rateLimitDenied metric.Int64Counter
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

// New builds the engine instruments off the registered provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName(cfg.ServiceName))

	leadsConsumed, err := meter.Int64Counter("aab_leads_consumed_total")
	if err != nil {
		return nil, err
	}
	leadLimitDenied, err := meter.Int64Counter("aab_lead_limit_denied_total")
	if err != nil {
		return nil, err
	}
	accessDenied, err := meter.Int64Counter("aab_job_access_denied_total")
	if err != nil {
		return nil, err
	}
	bidsCommitted, err := meter.Int64Counter("aab_bids_committed_total")
	if err != nil {
		return nil, err
	}
	bidsCompensated, err := meter.Int64Counter("aab_bids_compensated_total")
	if err != nil {
		return nil, err
	}
	upgrades, err := meter.Int64Counter("aab_membership_upgrades_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("aab_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		leadsConsumed:   leadsConsumed,
		leadLimitDenied: leadLimitDenied,
		accessDenied:    accessDenied,
		bidsCommitted:   bidsCommitted,
		bidsCompensated: bidsCompensated,
		upgrades:        upgrades,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// RecordLeadConsumed increments consumed lead counts per billing tier.
func (m *Metrics) RecordLeadConsumed(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.leadsConsumed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	)...))
}

// RecordLeadLimitDenied increments lead-limit denial counts.
func (m *Metrics) RecordLeadLimitDenied(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.leadLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	)...))
}

// RecordAccessDenied increments gate denial counts per reason.
func (m *Metrics) RecordAccessDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.accessDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

// RecordBidCommitted increments committed bid counts.
func (m *Metrics) RecordBidCommitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.bidsCommitted.Add(ctx, 1)
}

// RecordBidCompensated increments compensated saga counts.
func (m *Metrics) RecordBidCompensated(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.bidsCompensated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
	)...))
}

// RecordUpgrade increments membership upgrade counts per target tier.
func (m *Metrics) RecordUpgrade(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.upgrades.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	)...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)...))
}

func meterName(serviceName string) string {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = "aabengine"
	}
	return serviceName + "/engine"
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
	"tier":        {},
	"reason":      {},
	"step":        {},
	"endpoint":    {},
	"route":       {},
	"method":      {},
	"status_code": {},
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
