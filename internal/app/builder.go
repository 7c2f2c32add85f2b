package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/view-exporter/internal/api"
	"github.com/stacklok/view-exporter/internal/config"
	"github.com/stacklok/view-exporter/internal/db"
	"github.com/stacklok/view-exporter/internal/dispatch"
	"github.com/stacklok/view-exporter/internal/listener"
	"github.com/stacklok/view-exporter/internal/mirror"
	"github.com/stacklok/view-exporter/internal/resource"
	"github.com/stacklok/view-exporter/internal/status"
	"github.com/stacklok/view-exporter/internal/telemetry"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultDrainTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	listenerTracerName = "github.com/stacklok/view-exporter/listener"
	mirrorTracerName   = "github.com/stacklok/view-exporter/mirror"
)

// ExporterAppOptions is a function that configures the exporter app builder
type ExporterAppOptions func(*exporterAppConfig) error

// exporterAppConfig collects the builder inputs.
// Injected components override the ones built from config (primarily for testing).
type exporterAppConfig struct {
	config   *config.Config
	identity string

	// Optional component overrides
	sessionFactory SessionFactory
	registry       resource.Registry
	transport      mirror.Transport

	// Listener options
	outputDir string
	tick      time.Duration

	// Mirror options
	mirrorHost   string
	drainTimeout time.Duration

	// Status server options
	address        string
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...ExporterAppOptions) (*exporterAppConfig, error) {
	cfg := &exporterAppConfig{
		outputDir:      config.OutputDir,
		drainTimeout:   defaultDrainTimeout,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		cfg.config = &config.Config{}
	}
	if cfg.identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetStatusAddress()
	}

	return cfg, nil
}

// NewExporterApp builds the exporter from the given options.
// No connection is opened until Run.
func NewExporterApp(
	ctx context.Context,
	opts ...ExporterAppOptions,
) (*ExporterApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.registry == nil {
		cfg.registry, err = resource.FromConfig(cfg.config.Resources)
		if err != nil {
			return nil, fmt.Errorf("failed to build resource registry: %w", err)
		}
	}

	if cfg.sessionFactory == nil {
		cfg.sessionFactory = defaultSessionFactory(cfg.config.Database, cfg.identity)
	}

	tel, err := telemetry.New(ctx, cfg.config.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	components, listenerOpts, err := buildComponents(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	var httpServer *http.Server
	if cfg.address != "" {
		httpServer, err = buildHTTPServer(cfg, components.Tracker, tel)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to build status server: %w", err)
		}
	}

	return &ExporterApp{
		config:         cfg.config,
		components:     components,
		sessionFactory: cfg.sessionFactory,
		listenerOpts:   listenerOpts,
		httpServer:     httpServer,
		telemetry:      tel,
		drainTimeout:   cfg.drainTimeout,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithIdentity sets the identity used as database user and default SSH user
func WithIdentity(identity string) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		if identity == "" {
			return fmt.Errorf("identity cannot be empty")
		}
		cfg.identity = identity
		return nil
	}
}

// WithMirrorHost sets the remote host artifacts are mirrored to.
// An empty host keeps artifacts local.
func WithMirrorHost(host string) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.mirrorHost = host
		return nil
	}
}

// WithStatusAddress sets the status HTTP server address, overriding the config file
func WithStatusAddress(addr string) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		if addr == "" {
			return nil
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithSessionFactory allows injecting a custom store session (for testing)
func WithSessionFactory(f SessionFactory) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.sessionFactory = f
		return nil
	}
}

// WithRegistry allows injecting a custom resource registry (for testing)
func WithRegistry(r resource.Registry) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.registry = r
		return nil
	}
}

// WithTransport allows injecting a custom mirror transport (for testing)
func WithTransport(t mirror.Transport) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.transport = t
		return nil
	}
}

// WithOutputDir overrides the artifact directory (for testing)
func WithOutputDir(dir string) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		if dir == "" {
			return fmt.Errorf("output directory cannot be empty")
		}
		cfg.outputDir = dir
		return nil
	}
}

// WithTick overrides the listener poll window (for testing)
func WithTick(tick time.Duration) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		cfg.tick = tick
		return nil
	}
}

// WithDrainTimeout bounds how long the consumer may keep mirroring after the listener stops
func WithDrainTimeout(d time.Duration) ExporterAppOptions {
	return func(cfg *exporterAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive")
		}
		cfg.drainTimeout = d
		return nil
	}
}

// defaultSessionFactory connects over the local unix socket as identity
func defaultSessionFactory(dbCfg *config.DatabaseConfig, identity string) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		session, err := db.Connect(ctx, dbCfg, identity)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// buildComponents builds the queue, tracker, consumer and listener options
func buildComponents(
	b *exporterAppConfig,
	tel *telemetry.Telemetry,
) (*AppComponents, []listener.Option, error) {
	slog.Info("Initializing exporter components", "resources", len(b.registry.Names()))

	fetchMetrics, err := telemetry.NewFetchMetrics(tel.MeterProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create fetch metrics: %w", err)
	}
	mirrorMetrics, err := telemetry.NewMirrorMetrics(tel.MeterProvider())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mirror metrics: %w", err)
	}

	transport, err := buildTransport(b)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build mirror transport: %w", err)
	}

	tracker := status.NewTracker(b.registry.Names())

	listenerOpts := []listener.Option{
		listener.WithTimeZone(b.config.Database.GetTimeZone()),
		listener.WithOutputDir(b.outputDir),
		listener.WithObserver(tracker),
		listener.WithFetchMetrics(fetchMetrics),
		listener.WithTracer(tel.Tracer(listenerTracerName)),
	}
	if b.tick > 0 {
		listenerOpts = append(listenerOpts, listener.WithTick(b.tick))
	}

	consumer := mirror.NewConsumer(transport,
		mirror.WithMirrorMetrics(mirrorMetrics),
		mirror.WithTracer(tel.Tracer(mirrorTracerName)),
	)

	return &AppComponents{
		Registry: b.registry,
		Tracker:  tracker,
		Queue:    dispatch.NewQueue(),
		Consumer: consumer,
	}, listenerOpts, nil
}

// buildTransport selects SFTP when a mirror host is given, otherwise a local no-op
func buildTransport(b *exporterAppConfig) (mirror.Transport, error) {
	if b.transport != nil {
		return b.transport, nil
	}

	if b.mirrorHost == "" {
		slog.Info("No mirror host configured, artifacts stay local")
		return mirror.NewLocalTransport(), nil
	}

	m := b.config.Mirror
	transport, err := mirror.NewSFTPTransport(mirror.SFTPConfig{
		Host:           b.mirrorHost,
		Port:           m.GetPort(),
		User:           m.GetRemoteUser(b.identity),
		KnownHostsFile: m.GetKnownHostsFile(),
		RemoteDir:      remoteDir(m),
		DialTimeout:    m.GetDialTimeout(),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Mirroring artifacts over SFTP", "host", b.mirrorHost, "port", m.GetPort())
	return transport, nil
}

func remoteDir(m *config.MirrorConfig) string {
	if m == nil {
		return ""
	}
	return m.RemoteDir
}

// buildHTTPServer builds the status server with router and middleware
func buildHTTPServer(
	b *exporterAppConfig,
	provider api.StatusProvider,
	tel *telemetry.Telemetry,
) (*http.Server, error) {
	slog.Info("Initializing status server")

	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	// Metrics first so every request is counted
	middlewares := []func(http.Handler) http.Handler{
		metricsMiddleware,
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(b.requestTimeout),
		api.LoggingMiddleware,
	}

	router := api.NewServer(provider, api.WithMiddlewares(middlewares...))

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("Status server configured", "address", b.address)
	return server, nil
}
