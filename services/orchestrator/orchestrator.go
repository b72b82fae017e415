// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the CascadiaMind simulation service.
//
// The orchestrator wires the staged simulation engine to its
// collaborators: the knowledge graph taxonomy, the append-only memory
// log, the algorithm registry, and the HTTP/WebSocket surface. It owns
// process-level concerns too: OpenTelemetry tracing and metrics, bearer
// auth, rate limiting, and background retention of old run history.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210, DataDir: "/var/lib/mindsim"}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/handlers"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/middleware"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/retention"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/routes"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. Run blocks until the server stops;
// Shutdown drains in-flight requests and releases every resource the
// service holds.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run should be called
// at most once per instance; Shutdown may be called from any goroutine.
type Service interface {
	// Run starts the HTTP server and blocks until it stops. Returns nil
	// after a graceful Shutdown, non-nil on listener or serve failure.
	Run() error

	// Shutdown gracefully stops the server, waiting for in-flight
	// requests up to the context deadline, then releases resources.
	Shutdown(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options. All fields are
// optional; zero values take the defaults documented per field.
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses the GIN_MODE env var or "debug".
	GinMode string

	// SeedPath is the taxonomy seed file to load. If empty, the embedded
	// default seed is used.
	SeedPath string

	// WatchSeed enables hot reload of the seed file. Only effective when
	// SeedPath is set.
	WatchSeed bool

	// DataDir is the memory-log storage directory. If empty, run history
	// is kept in memory and lost on restart.
	DataDir string

	// AuthToken protects the /v1 API group with bearer auth. If empty,
	// the API is open and callers run as the local principal.
	AuthToken string

	// RateLimitRPS and RateLimitBurst configure per-client throttling of
	// the /v1 group. Zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTelEndpoint selects the trace exporter: empty disables tracing,
	// "stdout" prints spans to stdout, anything else is treated as an
	// OTLP gRPC collector endpoint such as "localhost:4317".
	OTelEndpoint string

	// EnableMetrics exposes Prometheus metrics on /metrics and installs
	// the OTel metric bridge so engine instruments are scraped too.
	EnableMetrics bool

	// RetentionEnabled starts the background sweeper that clears
	// sessions inactive past RetentionMaxAge.
	RetentionEnabled bool

	// RetentionInterval is how often the sweeper runs. Default: 1 hour.
	RetentionInterval time.Duration

	// RetentionMaxAge is the inactivity age at which sessions are
	// cleared. Default: 30 days.
	RetentionMaxAge time.Duration

	// Engine overrides the simulation system configuration. Nil uses
	// engine.DefaultSystemConfig().
	Engine *engine.SystemConfig
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; cleanup is guarded by closeOnce.
type service struct {
	config        Config
	router        *gin.Engine
	httpSrv       *http.Server
	taxonomy      *graph.Store
	watcher       *graph.SeedWatcher
	mem           *memlog.Log
	eng           *engine.Engine
	hub           *handlers.EventHub
	guard         *middleware.TokenGuard
	limiter       *middleware.RateLimiter
	sweeper       *retention.Sweeper
	tracerCleanup func(context.Context)
	closeOnce     sync.Once
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all orchestrator components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and the metric bridge
//  3. Loads the taxonomy seed (optionally with hot reload)
//  4. Opens the memory log
//  5. Builds the simulation engine and event hub
//  6. Starts background retention when enabled
//  7. Sets up the HTTP router and middleware
//
// Optional components (seed watcher, retention, metric bridge) log a
// warning and are skipped on failure; required components (taxonomy,
// memory log) fail construction.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics and the OTel bridge
	if s.config.EnableMetrics {
		observability.InitMetrics()
		if err := initMeterProvider(s.config.OTelEndpoint == "stdout"); err != nil {
			slog.Warn("Metric bridge initialization failed, engine instruments will not be scraped",
				"error", err)
		} else {
			slog.Info("Initialized Prometheus metrics")
		}
	}

	// Load the knowledge graph taxonomy
	if err := s.initTaxonomy(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	// Open the memory log
	if err := s.initMemLog(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open memory log: %w", err)
	}

	// Build the simulation engine and its event hub
	engCfg := engine.DefaultSystemConfig()
	if s.config.Engine != nil {
		engCfg = *s.config.Engine
	}
	s.hub = handlers.NewEventHub()
	s.eng = engine.New(engCfg, s.taxonomy, s.mem, algorithms.NewRegistry(),
		engine.WithLogger(slog.Default()))

	// Start background retention (optional)
	if s.config.RetentionEnabled {
		s.sweeper = retention.NewSweeper(s.mem, retention.Config{
			Interval: s.config.RetentionInterval,
			MaxAge:   s.config.RetentionMaxAge,
		}, slog.Default())
		if err := s.sweeper.Start(context.Background()); err != nil {
			slog.Warn("Retention sweeper failed to start", "error", err)
		}
	}

	s.guard = middleware.NewTokenGuard(s.config.AuthToken)
	s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: s.config.RateLimitRPS,
		Burst:             s.config.RateLimitBurst,
	})

	// Setup HTTP router
	s.initRouter()
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until it stops. A graceful
// Shutdown makes Run return nil; any other serve failure is returned
// as-is. Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	slog.Info("Starting orchestrator server", "port", s.config.Port)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and releases resources. The
// context bounds how long in-flight requests may take to drain.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down orchestrator server")
	err := s.httpSrv.Shutdown(ctx)
	s.cleanup()
	return err
}

// Router returns the underlying Gin engine for testing. Callers must not
// modify routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.RetentionInterval == 0 {
		cfg.RetentionInterval = 1 * time.Hour
	}
	if cfg.RetentionMaxAge == 0 {
		cfg.RetentionMaxAge = 30 * 24 * time.Hour
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Selects the exporter from OTelEndpoint: none, stdout, or OTLP over
// gRPC. The gRPC client connects lazily, so an unreachable collector
// does not block startup.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown. Nil
//     when tracing is disabled.
//   - error: Non-nil if tracer setup fails
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == "" {
		slog.Info("Tracing disabled, no OTel endpoint configured")
		return nil, nil
	}
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	if s.config.OTelEndpoint == "stdout" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporter = exp
	} else {
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = exp
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("mindsim-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace exporter", "error", err)
		}
	}

	return cleanup, nil
}

var (
	meterInitOnce sync.Once
	meterInitErr  error
)

// initMeterProvider installs a global meter provider that exports engine
// instruments through the Prometheus bridge, plus a periodic stdout
// reader in stdout mode. The bridge registers collectors on the default
// Prometheus registry, so initialization runs at most once per process.
func initMeterProvider(stdout bool) error {
	meterInitOnce.Do(func() {
		bridge, err := otelprom.New()
		if err != nil {
			meterInitErr = err
			return
		}
		opts := []sdkmetric.Option{sdkmetric.WithReader(bridge)}

		if stdout {
			enc, err := stdoutmetric.New()
			if err != nil {
				meterInitErr = err
				return
			}
			opts = append(opts, sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(enc, sdkmetric.WithInterval(30*time.Second))))
		}

		otel.SetMeterProvider(sdkmetric.NewMeterProvider(opts...))
	})
	return meterInitErr
}

// initTaxonomy loads the knowledge graph seed and optionally starts the
// hot-reload watcher. Watcher failures are not fatal; the service keeps
// serving the last good graph.
func (s *service) initTaxonomy() error {
	if s.config.SeedPath == "" {
		g, err := graph.LoadDefault()
		if err != nil {
			return err
		}
		s.taxonomy = graph.NewStore(g)
		slog.Info("Loaded embedded taxonomy seed",
			"nodes", g.NodeCount(), "edges", g.EdgeCount())
		return nil
	}

	g, err := graph.LoadFile(s.config.SeedPath)
	if err != nil {
		return err
	}
	s.taxonomy = graph.NewStore(g)
	slog.Info("Loaded taxonomy seed", "path", s.config.SeedPath,
		"nodes", g.NodeCount(), "edges", g.EdgeCount())

	if s.config.WatchSeed {
		watcher, err := graph.NewSeedWatcher(s.config.SeedPath, s.taxonomy, nil)
		if err != nil {
			slog.Warn("Seed watcher creation failed, hot reload disabled", "error", err)
			return nil
		}
		if err := watcher.Start(context.Background()); err != nil {
			slog.Warn("Seed watcher failed to start, hot reload disabled", "error", err)
			return nil
		}
		s.watcher = watcher
		slog.Info("Watching seed file for changes", "path", s.config.SeedPath)
	}
	return nil
}

// initMemLog opens the run-history store, in memory when no data
// directory is configured.
func (s *service) initMemLog() error {
	cfg := memlog.InMemoryConfig()
	if s.config.DataDir != "" {
		cfg = memlog.DefaultConfig()
		cfg.Path = s.config.DataDir
	} else {
		slog.Warn("No data directory configured, run history is ephemeral")
	}

	mem, err := memlog.Open(cfg)
	if err != nil {
		return err
	}
	s.mem = mem
	return nil
}

// initRouter sets up the Gin HTTP router with middleware and all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("mindsim-orchestrator"), middleware.RequestID())

	routes.SetupRoutes(s.router, s.eng, s.hub, s.mem, s.taxonomy,
		s.guard, s.limiter, s.config.EnableMetrics)
}

// cleanup releases all resources held by the service. Called when Run
// exits, from Shutdown, and on construction failure; runs at most once.
func (s *service) cleanup() {
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		if s.guard != nil {
			s.guard.Destroy()
		}
		if s.mem != nil {
			if err := s.mem.Close(); err != nil {
				slog.Warn("Memory log close error", "error", err)
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
