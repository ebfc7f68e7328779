// Package observability wires together the kernel's structured logger and
// Prometheus metrics. It replaces the teacher's OpenTelemetry/Jaeger trace
// pipeline with the slimmer stack the kernel actually needs: a slog logger
// and a handful of counters/gauges exposed on the operator HTTP surface.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/owulveryck/symbion-kernel/internal/config"
)

// Config describes how the logger and metrics registry should be built.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string
}

// Observability bundles the logger and metrics manager every component
// constructor takes, in place of the ambient globals the original source
// reached for.
type Observability struct {
	Config  Config
	Logger  *slog.Logger
	Metrics *MetricsManager
}

// NewObservability builds the logger (stdout, leveled, with service and
// environment attrs on every record) and the Prometheus metrics registry.
func NewObservability(cfg Config) (*Observability, error) {
	level := parseLevel(cfg.LogLevel)

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"environment", cfg.Environment,
	)

	metrics, err := NewMetricsManager()
	if err != nil {
		return nil, err
	}

	return &Observability{Config: cfg, Logger: logger, Metrics: metrics}, nil
}

// DefaultConfig builds an observability Config from the process
// configuration, mirroring the teacher's DefaultConfig(serviceName) helper.
func DefaultConfig(serviceName string) Config {
	appConfig := config.Load()
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: appConfig.ServiceVersion,
		Environment:    appConfig.Environment,
		LogLevel:       appConfig.LogLevel,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown is kept for call-site symmetry with the teacher's
// Observability.Shutdown; there is no exporter here to flush.
func (o *Observability) Shutdown(_ context.Context) error {
	return nil
}
