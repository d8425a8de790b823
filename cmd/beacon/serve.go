package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/service"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store/memory"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store/sqlite"
	"github.com/BrandonDHaskell/Beacon/server/internal/config"
	"github.com/BrandonDHaskell/Beacon/server/internal/db"
	"github.com/BrandonDHaskell/Beacon/server/internal/grpcapi"
	"github.com/BrandonDHaskell/Beacon/server/internal/httpapi"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the heartbeat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.String("http.addr", ":8080", "HTTP listen address")
	f.String("grpc.addr", "", "gRPC health listen address (empty disables)")
	f.String("db.driver", "sqlite", "Beat store backend: sqlite or memory")
	f.String("db.path", "./data/beacon.db", "SQLite database file")
	f.String("env", "dev", "Environment: dev or prod")
	f.Int("retention.days", 0, "Days of beats to keep (0 keeps everything)")

	return cmd
}

type stores struct {
	beats    store.BeatStore
	services store.ServiceStore
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("using in-memory store; beats are lost on restart")
		return stores{
			beats:    memory.New(),
			services: memory.NewServiceStore(cfg.KnownServices),
			close:    func() {},
		}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DB.Path, Env: cfg.Env}, logger)
	if err != nil {
		return stores{}, err
	}

	if cfg.Env == "dev" && len(cfg.KnownServices) > 0 {
		n, err := db.SeedDev(ctx, conn, db.SeedDevOptions{KnownServices: cfg.KnownServices})
		if err != nil {
			_ = conn.Close()
			return stores{}, err
		}
		logger.Info("seeded known services", zap.Int("inserted", n))
	}

	writer := db.NewWorker(conn)
	return stores{
		beats:    sqlite.NewBeatStore(conn, writer),
		services: sqlite.NewServiceStore(conn, writer),
		close: func() {
			writer.Close()
			_ = conn.Close()
		},
	}, nil
}

// runServer wires every component and blocks until ctx is done or a listener
// fails.
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	tracer, err := observability.NewTracer(cfg.Tracing, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	heartbeatSvc := service.NewHeartbeatService(service.HeartbeatDeps{
		Store:   st.beats,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	registry := service.NewServiceRegistry(st.services, heartbeatSvc)
	monitor := service.NewStoreMonitor(st.beats, cfg.Monitor.Interval, logger, metrics)

	deps := httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTP.Addr,
		HeartbeatService: heartbeatSvc,
		Registry:         registry,
		Monitor:          monitor,
		Tracer:           tracer,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = httpapi.NewRateLimiter(cfg.RateLimit, metrics)
	}
	srv := httpapi.NewServer(deps)

	var grpcSrv *grpcapi.Server
	if cfg.GRPC.Addr != "" {
		// Registers its listener on the monitor, so it must precede Run.
		grpcSrv = grpcapi.NewServer(grpcapi.Dependencies{
			Logger:  logger,
			Addr:    cfg.GRPC.Addr,
			Monitor: monitor,
			Tracer:  tracer,
		})
	}

	go monitor.Run(ctx)

	pruner := service.NewBeatPruner(st.beats, service.PrunerConfig{
		RetentionDays: cfg.Retention.Days,
		IntervalHours: cfg.Retention.PruneIntervalHours,
	}, logger, metrics)
	pruner.Start(ctx)
	defer pruner.Stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if grpcSrv != nil {
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcSrv.Start(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("listener failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}

	return runErr
}
