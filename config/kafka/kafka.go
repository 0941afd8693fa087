package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"github.com/twmb/franz-go/plugin/kotel"
	"github.com/twmb/franz-go/plugin/kslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	Scram256 string = "SCRAM-SHA-256"
	Scram512 string = "SCRAM-SHA-512"

	metricExportInterval = 60 * time.Second
)

type ServerConfig struct {
	ScramAlgorithm string
	TLS            bool
	Servers        []string
	UseTelemetry   bool
	UserName       string
	Password       string
}

// NewKafkaClient builds a franz-go client with logging, optional kotel
// instrumentation and SASL/TLS applied on top of the caller's options.
func NewKafkaClient(serverConfig ServerConfig, extra []kgo.Opt) (*kgo.Client, error) {
	logger := slog.Default().With("component", "kafka")

	opts := []kgo.Opt{
		kgo.SeedBrokers(serverConfig.Servers...),
		kgo.WithLogger(kslog.New(logger)),
	}
	opts = append(opts, extra...)

	if serverConfig.UseTelemetry {
		hooksOpt, err := telemetryHooks(context.Background())
		if err != nil {
			return nil, err
		}
		opts = append(opts, hooksOpt)
	}

	if serverConfig.ScramAlgorithm != "" {
		scramAuth := scram.Auth{
			User: serverConfig.UserName,
			Pass: serverConfig.Password,
		}

		switch serverConfig.ScramAlgorithm {
		case Scram256:
			opts = append(opts, kgo.SASL(scramAuth.AsSha256Mechanism()))
		case Scram512:
			opts = append(opts, kgo.SASL(scramAuth.AsSha512Mechanism()))
		default:
			return nil, fmt.Errorf("unsupported scram algorithm %q", serverConfig.ScramAlgorithm)
		}
	}

	if serverConfig.TLS {
		opts = append(opts, kgo.DialTLS())
	}

	return kgo.NewClient(opts...)
}

func telemetryHooks(ctx context.Context) (kgo.Opt, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(metricExportInterval))),
	)

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
	)

	kotelService := kotel.NewKotel(
		kotel.WithMeter(kotel.NewMeter(kotel.MeterProvider(meterProvider))),
		kotel.WithTracer(kotel.NewTracer(
			kotel.TracerProvider(tracerProvider),
			kotel.TracerPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{})),
		)),
	)

	return kgo.WithHooks(kotelService.Hooks()...), nil
}
