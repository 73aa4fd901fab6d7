package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"sociohiro-backend/internal/config"
	"sociohiro-backend/internal/logger"
)

const serviceVersion = "1.0.0"

// InitTracer exports spans over OTLP/gRPC. Release builds sample
// cfg.OTelSampleRatio of root traces and every other mode samples all of them.
// The returned function flushes pending spans.
func InitTracer(serviceName string, cfg *config.Config) (func(), error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.GinMode),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg)),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracer initialized", "endpoint", cfg.OTelEndpoint, "sample_ratio", cfg.OTelSampleRatio)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}, nil
}

// sampler follows the parent's decision so Graph spans stay attached to
// the request span that triggered them.
func sampler(cfg *config.Config) sdktrace.Sampler {
	if cfg.GinMode != "release" {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OTelSampleRatio))
}
