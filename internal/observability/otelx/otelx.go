package otelx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/newsreader/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"

	defaultServiceName = "newsreader"
)

// ShutdownFunc flushes buffered spans and stops the exporter.
type ShutdownFunc func(context.Context) error

// target is where spans are sent. endpoint is host:port for grpc and may be
// a full URL for http/protobuf.
type target struct {
	protocol string
	endpoint string
	isURL    bool
}

// Init installs the global tracer provider the fetcher's spans are recorded
// on. With tracing disabled the global no-op provider stays in place.
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelEnvConfig) (ShutdownFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	dst, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, dst, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", dst.protocol, err)
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(service)),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	ratio := min(max(cfg.SampleRatio, 0), 1)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		// One-shot CLI runs are short; export promptly.
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Second)),
		sdktrace.WithSampler(sampler(ratio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("tracing enabled", "service", service, "protocol", dst.protocol, "endpoint", dst.endpoint, "sample_ratio", ratio)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func resolveTarget(cfg config.OTelEnvConfig) (target, error) {
	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	switch protocol {
	case "", protocolGRPC:
		protocol = protocolGRPC
	case "http", protocolHTTP:
		protocol = protocolHTTP
	default:
		return target{}, fmt.Errorf("unsupported OTLP protocol %q: want grpc or http/protobuf", cfg.Protocol)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		if protocol == protocolHTTP {
			return target{protocol: protocol, endpoint: "localhost:4318"}, nil
		}
		return target{protocol: protocol, endpoint: "localhost:4317"}, nil
	}
	if !strings.Contains(endpoint, "://") {
		return target{protocol: protocol, endpoint: endpoint}, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return target{}, fmt.Errorf("invalid OTLP endpoint %q", endpoint)
	}
	if protocol == protocolGRPC {
		// grpc dials host:port; scheme and path do not apply.
		return target{protocol: protocol, endpoint: u.Host}, nil
	}
	return target{protocol: protocol, endpoint: endpoint, isURL: true}, nil
}

func newExporter(ctx context.Context, dst target, cfg config.OTelEnvConfig) (*otlptrace.Exporter, error) {
	if dst.protocol == protocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(dst.endpoint)}
		if dst.isURL {
			opts = []otlptracehttp.Option{otlptracehttp.WithEndpointURL(dst.endpoint)}
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(dst.endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}
