package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/embedview/internal/api"
	"github.com/23skdu/embedview/internal/health"
	"github.com/23skdu/embedview/internal/limiter"
	"github.com/23skdu/embedview/internal/logging"
	"github.com/23skdu/embedview/internal/metrics"
	"github.com/23skdu/embedview/internal/pipeline"
	"github.com/23skdu/embedview/internal/resolver"
	"github.com/23skdu/embedview/internal/state"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build application")
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("embedview exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("embedview stopped")
}

func newLogger(cfg *Config) (zerolog.Logger, error) {
	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return logger, err
	}
	return logger.With().Str("version", version).Logger(), nil
}

// app owns the listeners and the single-assignment snapshot they read from.
type app struct {
	cfg    Config
	logger zerolog.Logger
	store  *state.Store[pipeline.Snapshot]
	health *health.HealthManager
	router http.Handler
}

func newApp(cfg Config, logger zerolog.Logger) (*app, error) {
	res, err := resolver.New(resolver.Options{Root: cfg.ImageRoot}, logger)
	if err != nil {
		return nil, err
	}

	store := state.NewStore[pipeline.Snapshot]()

	hm := health.NewHealthManager(version, logger)
	hm.RegisterChecker(health.NewReadinessChecker("metadata", store.Ready, func() map[string]interface{} {
		details := map[string]interface{}{"phase": store.Phase().String()}
		if snap, err := store.Load(); err == nil {
			details["points"] = snap.Points
			details["dimensions"] = snap.Dim
		}
		return details
	}))

	handler := api.NewHandler(store, res, logger, api.Options{NeighborsK: cfg.NeighborsK})
	router := api.NewRouter(handler, hm, limiter.NewRateLimiter(cfg.Config))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		health: hm,
		router: router,
	}, nil
}

// initialize runs the startup pipeline and publishes its snapshot.
func (a *app) initialize(ctx context.Context) error {
	snap, err := pipeline.Run(ctx, a.cfg.PipelineConfig(), a.logger)
	if err != nil {
		return err
	}
	if err := a.store.Publish(snap); err != nil {
		return err
	}
	metrics.MetadataReady.Set(1)
	a.logger.Info().Int("points", snap.Points).Msg("metadata ready")
	return nil
}

// run serves until ctx is cancelled or a component fails. Without
// ListenBeforeReady the pipeline completes before any listener is opened.
func (a *app) run(ctx context.Context) error {
	if !a.cfg.ListenBeforeReady {
		if err := a.initialize(ctx); err != nil {
			return err
		}
	}

	apiLis, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.ListenAddr, err)
	}
	metricsLis, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		return fmt.Errorf("listen %s: %w", a.cfg.MetricsAddr, err)
	}

	apiSrv := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("address", apiLis.Addr().String()).Msg("HTTP server starting")
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info().Str("address", metricsLis.Addr().String()).Msg("metrics server starting")
		if err := metricsSrv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if a.cfg.ListenBeforeReady {
		g.Go(func() error {
			return a.initialize(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiSrv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
