// ABOUTME: OpenTelemetry reader and exporter factory for metrics (Prometheus scrape endpoint, stdout) and traces (OTLP, stdout)
// ABOUTME: Owns the HTTP server behind the Prometheus endpoint so the provider can stop it on shutdown

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/KevoDB/rowslice/pkg/common/log"
)

// metricsPath is where the Prometheus endpoint serves scrapes
const metricsPath = "/metrics"

// createMetricReaders creates one metric reader per configured metric exporter.
// Push exporters are wrapped in periodic readers; Prometheus is a pull reader
// served over HTTP, and its server is returned so it can be shut down.
func createMetricReaders(cfg Config) ([]metric.Reader, []*http.Server, error) {
	var readers []metric.Reader
	var servers []*http.Server

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterPrometheus:
			reader, srv, err := createPrometheusReader(cfg)
			if err != nil {
				shutdownServers(context.Background(), servers)
				return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			readers = append(readers, reader)
			servers = append(servers, srv)

		case ExporterStdout:
			exporter, err := createStdoutMetricExporter()
			if err != nil {
				shutdownServers(context.Background(), servers)
				return nil, nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			readers = append(readers, periodicReader(cfg, exporter))

		default:
			// otlp carries traces only
			continue
		}
	}

	if len(readers) == 0 {
		exporter, err := createStdoutMetricExporter()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create default stdout metric exporter: %w", err)
		}
		readers = append(readers, periodicReader(cfg, exporter))
	}

	return readers, servers, nil
}

func periodicReader(cfg Config, exporter metric.Exporter) metric.Reader {
	return metric.NewPeriodicReader(exporter,
		metric.WithInterval(cfg.BatchTimeout),
		metric.WithTimeout(cfg.ExportTimeout),
	)
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterOTLP:
			exporter, err := createOTLPTraceExporter(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case ExporterStdout:
			exporter, err := createStdoutTraceExporter()
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		default:
			continue
		}
	}

	if len(exporters) == 0 {
		exporter, err := createStdoutTraceExporter()
		if err != nil {
			return nil, fmt.Errorf("failed to create default stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

// createPrometheusReader registers an OpenTelemetry Prometheus reader on a
// private registry and serves it on PrometheusPort.
func createPrometheusReader(cfg Config) (metric.Reader, *http.Server, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.PrometheusPort))
	if err != nil {
		exporter.Shutdown(context.Background())
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Prometheus endpoint on port %d stopped: %v", cfg.PrometheusPort, err)
		}
	}()

	return exporter, srv, nil
}

func shutdownServers(ctx context.Context, servers []*http.Server) error {
	var errs []error
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// createStdoutMetricExporter creates a stdout metrics exporter.
func createStdoutMetricExporter() (metric.Exporter, error) {
	return stdoutmetric.New(
		stdoutmetric.WithPrettyPrint(),
	)
}

// otlpEndpoint splits a collector URL into the host:port the gRPC exporter
// dials and whether the connection is plaintext. Bare host:port values are
// taken as plaintext.
func otlpEndpoint(endpoint string) (string, bool, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		if _, _, splitErr := net.SplitHostPort(endpoint); splitErr == nil {
			return endpoint, true, nil
		}
		return "", false, fmt.Errorf("invalid OTLP endpoint %q", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

// createOTLPTraceExporter creates an OTLP trace exporter.
func createOTLPTraceExporter(cfg Config) (trace.SpanExporter, error) {
	host, insecure, err := otlpEndpoint(cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(host),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(context.Background(), opts...)
}

// createStdoutTraceExporter creates a stdout trace exporter.
func createStdoutTraceExporter() (trace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
	)
}
