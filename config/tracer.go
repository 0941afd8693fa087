package tracer

import (
	"context"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const defaultServiceName = "billing-engine"

type TracerConfig struct {
	ServiceName string
	EndpointURL string
	Insecure    string
}

func (tc TracerConfig) UseSecureMode() bool {
	insecure := strings.ToLower(tc.Insecure)
	return insecure != "false" && insecure != "0" && insecure != "f"
}

// GetTracerSpan starts a span on the globally registered provider. It is a
// no-op span until InitOTLPTracer has run.
func GetTracerSpan(ctx context.Context, tracerName string, name string) trace.Span {
	_, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, name)
	return span
}

// InitOTLPTracer registers a batching OTLP gRPC exporter as the global tracer
// provider and returns its shutdown function.
func InitOTLPTracer(cfg TracerConfig) func(context.Context) error {
	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
	}
	if cfg.UseSecureMode() {
		clientOpts = append(clientOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	} else {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		log.Fatalf("Failed to create exporter: %v", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		log.Fatalf("Could not set resource: %v", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)

	return exporter.Shutdown
}
