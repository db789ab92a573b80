package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/domainiq/internal/adapter/cloudflare"
	dnsadapter "github.com/neomorfeo/domainiq/internal/adapter/dns"
	"github.com/neomorfeo/domainiq/internal/adapter/fsm"
	handler "github.com/neomorfeo/domainiq/internal/adapter/http"
	"github.com/neomorfeo/domainiq/internal/adapter/local"
	adapterotel "github.com/neomorfeo/domainiq/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/domainiq/internal/adapter/river"
	"github.com/neomorfeo/domainiq/internal/adapter/sqlite"
	"github.com/neomorfeo/domainiq/internal/app"
	"github.com/neomorfeo/domainiq/internal/config"
	"github.com/neomorfeo/domainiq/internal/domain"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("domainiq exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := cfg.Level()
	slog.SetDefault(newLogger(os.Stderr, cfg.LogFormat, level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	providers, err := adapterotel.Setup(ctx, cfg.Telemetry())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := adapterotel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	riverClient, err := riveradapter.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	publisher, err := adapterotel.NewTracingPublisher(riveradapter.NewPublisher(riverClient))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	provider, err := newHostingProvider(cfg)
	if err != nil {
		return err
	}

	store := adapterotel.NewTracingStore(repo)
	resolver := newResolver(cfg)

	// --- Application ---
	svc := app.NewDomainService(
		store,
		resolver,
		adapterotel.NewTracingHostingProvider(provider),
		publisher,
		fsm.New(),
		cfg.Service(),
	)
	reconciler := app.NewReconciler(store, svc, cfg.Reconciler())
	svc.OnTransient(reconciler.Wake)

	// --- Adapters (in) ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(svc, cfg.OTel.ServiceName, cfg.OTel.ServiceVersion, db.PingContext),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// River stops through Stop below; cancelling its start context would
	// abandon running jobs.
	if err := riverClient.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("domainiq listening", "addr", srv.Addr, "docs", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return reconciler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := riverClient.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("river stop: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("stopped")
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newResolver shares DNS_TIMEOUT between the per-server cap and the service's
// lookup deadline; the resolver splits that deadline across the nameservers.
func newResolver(cfg config.Config) domain.TXTResolver {
	return adapterotel.NewTracingResolver(dnsadapter.New(cfg.DNSNameservers, cfg.DNSTimeout))
}

func newHostingProvider(cfg config.Config) (domain.HostingProvider, error) {
	switch cfg.HostingProvider {
	case "cloudflare":
		p, err := cloudflare.New(cloudflare.Config{
			APIToken:          cfg.CloudflareAPIToken,
			ZoneID:            cfg.CloudflareZoneID,
			BaseURL:           cfg.CloudflareBaseURL,
			ValidationMethod:  cfg.CloudflareDCV,
			RequestsPerSecond: cfg.CloudflareRPS,
		})
		if err != nil {
			return nil, fmt.Errorf("hosting provider: %w", err)
		}
		return p, nil
	default:
		slog.Warn("using the local hosting provider, certificates are simulated")
		return local.New(cfg.LocalIssueAfter), nil
	}
}

func newRouter(svc *app.DomainService, name, version string, ping func(context.Context) error) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(name, otelchi.WithChiRoutes(router)))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	api := humachi.New(router, huma.DefaultConfig(name, version))
	handler.Register(api, svc)

	return router
}

// requestLogger logs one line per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
