package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"datapulse/internal/config"
	apperrors "datapulse/internal/errors"
	"datapulse/internal/exporter"
	"datapulse/internal/grading"
	"datapulse/internal/infrastructure"
	"datapulse/internal/ingest"
	"datapulse/internal/middleware"
	"datapulse/internal/session"
	transport "datapulse/internal/transport/http"
	"datapulse/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *infrastructure.Telemetry
	Store     *session.Store
	Router    *chi.Mux
	Server    *http.Server

	closeLog func() error
}

// SessionOptions translates configuration into the options every session
// is created with
func SessionOptions(cfg *config.Config) (session.Options, error) {
	policy, err := grading.ParseFailPolicy(cfg.Grading.FailPolicy)
	if err != nil {
		return session.Options{}, apperrors.NewConfigError("invalid grading.fail_policy", err)
	}

	opts := session.Options{
		Ingest: ingest.Options{
			MaxFiles:       cfg.Ingestion.MaxFiles,
			HeaderScanRows: cfg.Ingestion.HeaderScanRows,
			Workers:        cfg.Ingestion.DecodeWorkers,
		},
		Grading: grading.Options{
			FailPolicy: policy,
			Precision:  cfg.Grading.Precision,
		},
		TopPerformers: cfg.Grading.TopPerformers,
	}

	if len(cfg.Grading.Scale) > 0 {
		grades := make([]grading.Grade, len(cfg.Grading.Scale))
		for i, g := range cfg.Grading.Scale {
			grades[i] = grading.Grade{Symbol: g.Symbol, Points: g.Points, Passing: g.Passing}
		}
		scale, err := grading.NewScale(grades)
		if err != nil {
			return session.Options{}, apperrors.NewConfigError("invalid grading.scale", err)
		}
		opts.Grading.Scale = scale
	}
	return opts, nil
}

// New wires every component from cfg. Log records go to stdout unless the
// logging config says otherwise; a nil stdout means os.Stdout.
func New(cfg *config.Config, stdout io.Writer) (*Application, error) {
	logger, closeLog, err := infrastructure.NewLogger(cfg.Logging, stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	telemetry, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, nil, logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	opts, err := SessionOptions(cfg)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to build session options: %w", err)
	}

	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Store:     session.NewStore(opts, telemetry, logger),
		closeLog:  closeLog,
	}

	if err := a.setupRouter(); err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	a.createServer()

	return a, nil
}

// setupRouter orders middleware as RequestID, RealIP, OTel, error
// handling, security headers. /metrics stays outside the traced group.
func (a *Application) setupRouter() error {
	errorHandler := apperrors.NewErrorHandler(a.Logger, false)

	otelMiddleware, err := middleware.NewOTelMiddleware(a.Telemetry, a.Logger)
	if err != nil {
		return err
	}

	limiter := middleware.NewUploadLimiter(
		a.Config.Server.UploadRPS,
		a.Config.Server.UploadBurst,
		a.Config.Server.MaxUploadBytes,
		a.Logger,
	)

	health := transport.NewHealthHandler(a.Store, a.Logger)
	sessions := transport.NewSessionHandler(a.Store, exporter.NewWriter(a.Logger), limiter, errorHandler, a.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Group(func(r chi.Router) {
		r.Use(otelMiddleware.Handler)
		r.Use(apperrors.NewErrorMiddleware(errorHandler, a.Logger).Handler)
		r.Use(middleware.SecurityHeaders)

		r.Mount("/healthz", health.Routes())

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Get("/version", health.Version)
			r.Mount("/sessions", sessions.Routes())
		})
	})

	r.Handle("/metrics", transport.NewMetricsHandler(a.Telemetry.MetricsHandler, errorHandler))

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// server fails, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Server.Serve(ln)
	}()

	a.Logger.InfoContext(ctx, "server listening",
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level),
		slog.Bool("metrics", a.Telemetry.MetricsHandler != nil))

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			a.Stop(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	}

	return a.Stop(context.Background())
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete",
		slog.Int("open_sessions", a.Store.Len()))

	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
