package listener

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/view-exporter/internal/config"
	"github.com/stacklok/view-exporter/internal/otel"
	"github.com/stacklok/view-exporter/internal/resource"
	"github.com/stacklok/view-exporter/internal/telemetry"
)

// DefaultTick is the length of one poll window
const DefaultTick = 300 * time.Millisecond

// Session is the single upstream connection owned by the listener
type Session interface {
	resource.Querier

	// SetTimeZone sets the session time zone used to render timestamps
	SetTimeZone(ctx context.Context, tz string) error

	// Listen subscribes the session to a notification channel
	Listen(ctx context.Context, channel string) error

	// WaitForNotification blocks until a notification arrives or ctx is done
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Listener exports resources and re-exports them on change notifications
type Listener struct {
	session  Session
	registry resource.Registry
	sink     resource.Sink

	tick      time.Duration
	channel   string
	timeZone  string
	outputDir string

	observer     Observer
	fetchMetrics *telemetry.FetchMetrics
	tracer       trace.Tracer
}

// Option is a function that configures the listener
type Option func(*Listener)

// WithTick sets the poll window length
func WithTick(tick time.Duration) Option {
	return func(l *Listener) {
		if tick > 0 {
			l.tick = tick
		}
	}
}

// WithChannel sets the notification channel to subscribe to
func WithChannel(channel string) Option {
	return func(l *Listener) {
		l.channel = channel
	}
}

// WithTimeZone sets the session time zone
func WithTimeZone(tz string) Option {
	return func(l *Listener) {
		l.timeZone = tz
	}
}

// WithOutputDir sets the directory resources are written to
func WithOutputDir(dir string) Option {
	return func(l *Listener) {
		l.outputDir = dir
	}
}

// WithObserver sets the observer notified about fetch progress
func WithObserver(observer Observer) Option {
	return func(l *Listener) {
		if observer != nil {
			l.observer = observer
		}
	}
}

// WithFetchMetrics sets the fetch metrics for the listener
func WithFetchMetrics(metrics *telemetry.FetchMetrics) Option {
	return func(l *Listener) {
		l.fetchMetrics = metrics
	}
}

// WithTracer sets the tracer used for fetch spans
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Listener) {
		l.tracer = tracer
	}
}

// New creates a listener for the given session and registry.
// Every written artifact path is emitted to sink.
func New(session Session, registry resource.Registry, sink resource.Sink, opts ...Option) *Listener {
	l := &Listener{
		session:   session,
		registry:  registry,
		sink:      sink,
		tick:      DefaultTick,
		channel:   config.NotifyChannel,
		timeZone:  config.DefaultTimeZone,
		outputDir: config.OutputDir,
		observer:  nopObserver{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run prepares the session, bootstraps every resource and then services
// notifications until a fatal error occurs or ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.setup(ctx); err != nil {
		return err
	}

	if err := l.bootstrap(ctx); err != nil {
		return err
	}

	slog.Info("Listening for changes", "channel", l.channel, "tick", l.tick)

	for {
		pending, err := l.poll(ctx)
		if err != nil {
			return err
		}
		if err := l.drain(ctx, pending); err != nil {
			return err
		}
	}
}

// setup configures the session before any resource is fetched
func (l *Listener) setup(ctx context.Context) error {
	if err := l.session.SetTimeZone(ctx, l.timeZone); err != nil {
		return &SetupError{Step: "set time zone", Err: err}
	}
	if err := l.session.Listen(ctx, l.channel); err != nil {
		return &SetupError{Step: "listen", Err: err}
	}
	slog.Debug("Session configured", "time_zone", l.timeZone, "channel", l.channel)
	return nil
}

// bootstrap fetches every registered resource once, in registry order
func (l *Listener) bootstrap(ctx context.Context) error {
	names := l.registry.Names()
	slog.Info("Starting bootstrap", "resource_count", len(names))

	start := time.Now()
	for _, name := range names {
		if err := l.fetch(ctx, name, "bootstrap"); err != nil {
			return err
		}
	}

	elapsed := time.Since(start)
	slog.Info("Bootstrap completed", "resource_count", len(names), "duration", elapsed)
	l.observer.BootstrapCompleted(elapsed)
	return nil
}

// poll collects the distinct names notified during one tick
func (l *Listener) poll(ctx context.Context) (map[resource.Name]struct{}, error) {
	pending := make(map[resource.Name]struct{})

	tickCtx, cancel := context.WithTimeout(ctx, l.tick)
	defer cancel()

	for {
		n, err := l.session.WaitForNotification(tickCtx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isTickExpired(err) {
				return pending, nil
			}
			return nil, &NotificationError{Err: err}
		}
		pending[resource.Name(n.Payload)] = struct{}{}
	}
}

// drain fetches each pending name once
func (l *Listener) drain(ctx context.Context, pending map[resource.Name]struct{}) error {
	if len(pending) == 0 {
		return nil
	}

	slog.Debug("Draining pending resources", "count", len(pending))
	for name := range pending {
		if err := l.fetch(ctx, name, "notify"); err != nil {
			return err
		}
	}
	return nil
}

// fetch runs a timed export of one resource.
// Unknown names are reported and skipped; a failed export is fatal.
func (l *Listener) fetch(ctx context.Context, name resource.Name, phase string) error {
	res, ok := l.registry.Lookup(name)
	if !ok {
		slog.Warn("Unknown resource", "resource", name, "phase", phase)
		l.fetchMetrics.RecordUnknown(ctx)
		l.observer.UnknownResource(name)
		return nil
	}

	ctx, span := otel.StartSpan(ctx, l.tracer, "listener.fetch",
		trace.WithAttributes(
			otel.AttrResourceName.String(string(name)),
			otel.AttrFetchPhase.String(phase),
		),
	)
	defer span.End()

	l.observer.FetchStarted(name)
	start := time.Now()
	items, err := res.Fetch(ctx, l.session, l.outputDir, l.sink)
	elapsed := time.Since(start)
	l.fetchMetrics.RecordFetch(ctx, string(name), items, elapsed, err == nil)

	if err != nil {
		otel.RecordError(span, err)
		l.observer.FetchFailed(name, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Error("Fetch failed", "resource", name, "phase", phase, "duration", elapsed, "error", err)
		return &FetchError{Name: name, Err: err}
	}

	span.SetAttributes(otel.AttrItemCount.Int(items))
	slog.Info("Fetched resource", "resource", name, "items", items, "duration", elapsed)
	l.observer.FetchCompleted(name, items, elapsed)
	return nil
}

// isTickExpired reports whether err only signals the end of a poll window
func isTickExpired(err error) bool {
	return pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded)
}
