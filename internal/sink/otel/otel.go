// Package otel implements a sink.Store that ships records via OpenTelemetry
// (OTLP) to the log server configured for the run.
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc/credentials"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"

	"github.com/umhmon/umh/internal/sink"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultInterval  = 5 * time.Second
	defaultBatchSize = 512
)

// Config holds the configuration needed to construct a Store.
type Config struct {
	Endpoint string
	Protocol string // "grpc" or "http"

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
	TLSInsecure bool

	Headers map[string]string

	Timeout      time.Duration
	BatchTimeout time.Duration
	BatchMaxSize int

	Filter Filter

	Resource *resource.Resource

	// Exporter replaces the OTLP exporter built from Endpoint.
	Exporter sdklog.Exporter
}

// ParseEndpoint fills Endpoint, Protocol and TLSEnabled from a logserver
// value. A bare host:port is OTLP/gRPC in clear text; grpc://, grpcs://,
// http:// and https:// pick the transport explicitly.
func (c *Config) ParseEndpoint(logServer string) error {
	addr := strings.TrimSpace(logServer)
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		scheme, rest = "grpc", addr
	}
	switch strings.ToLower(scheme) {
	case "grpc":
		c.Protocol, c.TLSEnabled = "grpc", false
	case "grpcs":
		c.Protocol, c.TLSEnabled = "grpc", true
	case "http":
		c.Protocol, c.TLSEnabled = "http", false
	case "https":
		c.Protocol, c.TLSEnabled = "http", true
	default:
		return fmt.Errorf("%w: scheme %q", ErrBadEndpoint, scheme)
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return fmt.Errorf("%w: %q", ErrBadEndpoint, logServer)
	}
	c.Endpoint = rest
	return nil
}

// Store implements sink.Store by exporting records as OTEL log records.
// It is safe for concurrent use. Export errors are dropped by the batch
// processor so that an interception never waits on the network.
type Store struct {
	filter *Filter

	logProvider *sdklog.LoggerProvider
	logger      otellog.Logger
}

var _ sink.Store = (*Store)(nil)

// New creates a Store. The context is used for creating the exporter.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" && cfg.Exporter == nil {
		return nil, fmt.Errorf("%w: empty", ErrBadEndpoint)
	}
	if err := cfg.Filter.Compile(); err != nil {
		return nil, fmt.Errorf("otel filter: %w", err)
	}

	exp := cfg.Exporter
	if exp == nil {
		var err error
		if exp, err = newLogExporter(ctx, cfg); err != nil {
			return nil, fmt.Errorf("otel log exporter: %w", err)
		}
	}
	proc := sdklog.NewBatchProcessor(exp,
		sdklog.WithExportTimeout(orDefault(cfg.Timeout, defaultTimeout)),
		sdklog.WithExportInterval(orDefault(cfg.BatchTimeout, defaultInterval)),
		sdklog.WithExportMaxBatchSize(orDefault(cfg.BatchMaxSize, defaultBatchSize)),
	)
	return newWithProcessor(proc, cfg.Resource, &cfg.Filter), nil
}

func orDefault[T time.Duration | int](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func newWithProcessor(proc sdklog.Processor, res *resource.Resource, filter *Filter) *Store {
	opts := []sdklog.LoggerProviderOption{sdklog.WithProcessor(proc)}
	if res != nil {
		opts = append(opts, sdklog.WithResource(res))
	}
	lp := sdklog.NewLoggerProvider(opts...)
	return &Store{
		filter:      filter,
		logProvider: lp,
		logger:      lp.Logger("umh"),
	}
}

// Append converts and emits the record. Filtered records are dropped.
func (s *Store) Append(ctx context.Context, rec sink.Record) error {
	if !s.filter.Match(rec.API, rec.Category) {
		return nil
	}
	s.logger.Emit(ctx, convertToLogRecord(rec))
	return nil
}

// Close flushes pending records and shuts the provider down.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if s.logProvider == nil {
		return nil
	}
	if err := s.logProvider.Shutdown(ctx); err != nil {
		slog.Warn("otel: log provider shutdown", "error", err)
		return err
	}
	return nil
}

func tlsConfig(cfg Config) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLSInsecure,
	}
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	var tlsCfg *tls.Config
	if cfg.TLSEnabled {
		var err error
		if tlsCfg, err = tlsConfig(cfg); err != nil {
			return nil, err
		}
	}
	switch cfg.Protocol {
	case "grpc", "":
		return grpcExporter(ctx, cfg, tlsCfg)
	case "http":
		return httpExporter(ctx, cfg, tlsCfg)
	}
	return nil, fmt.Errorf("%w: protocol %q", ErrBadEndpoint, cfg.Protocol)
}

func grpcExporter(ctx context.Context, cfg Config, tlsCfg *tls.Config) (sdklog.Exporter, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploggrpc.WithTimeout(cfg.Timeout))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	if tlsCfg != nil {
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return otlploggrpc.New(ctx, opts...)
}

func httpExporter(ctx context.Context, cfg Config, tlsCfg *tls.Config) (sdklog.Exporter, error) {
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.Timeout))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if tlsCfg != nil {
		opts = append(opts, otlploghttp.WithTLSClientConfig(tlsCfg))
	} else {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return otlploghttp.New(ctx, opts...)
}
