package telemetry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestPrometheusEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Exporters = []string{ExporterPrometheus}
	cfg.PrometheusPort = freePort(t)

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	ctx := context.Background()
	defer tel.Shutdown(ctx)

	tel.RecordCounter(ctx, "slice.requests", 3)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", cfg.PrometheusPort, metricsPath))
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read scrape: %v", err)
	}
	if !strings.Contains(string(body), "slice_requests") {
		t.Errorf("Expected slice_requests in scrape output:\n%s", body)
	}
}

func TestPrometheusPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	cfg := validConfig()
	cfg.Exporters = []string{ExporterPrometheus}
	cfg.PrometheusPort = ln.Addr().(*net.TCPAddr).Port

	if _, err := New(cfg); err == nil {
		t.Error("Expected an error when the prometheus port is taken")
	}
}

func TestOTLPEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		host     string
		insecure bool
		wantErr  bool
	}{
		{endpoint: "http://localhost:4317", host: "localhost:4317", insecure: true},
		{endpoint: "https://collector.example:4317", host: "collector.example:4317", insecure: false},
		{endpoint: "localhost:4317", host: "localhost:4317", insecure: true},
		{endpoint: "not an endpoint", wantErr: true},
	}

	for _, tt := range tests {
		host, insecure, err := otlpEndpoint(tt.endpoint)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.endpoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.endpoint, err)
			continue
		}
		if host != tt.host || insecure != tt.insecure {
			t.Errorf("%s: expected (%s, %v), got (%s, %v)", tt.endpoint, tt.host, tt.insecure, host, insecure)
		}
	}
}
