package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venuebook/internal/api"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const blackoutsPollInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the background job and lifecycle loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, &logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Venue.BlackoutsFile != "" {
		err := config.WatchBlackouts(ctx, cfg.Venue.BlackoutsFile, blackoutsPollInterval, func(bc *config.BlackoutsConfig) {
			if err := a.db.SyncBlackoutsFromConfig(ctx, bc); err != nil {
				logger.Error().Err(err).Msg("Failed to sync blackouts file")
			}
		})
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Venue.BlackoutsFile).Msg("Failed to load blackouts file")
		}
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, a.db, a.rdb, logger)
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealthServer(ctx, cfg.Monitoring.GRPCHealthPort, a.db, logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(a.db, cfg.Backup, cfg.BackupInterval(), logger)
		go backups.Start(ctx)
	}

	if cfg.Jobs.TriggerEnabled {
		go a.trigger.Start(ctx)
	} else {
		logger.Info().Msg("Background trigger disabled, use POST /api/trigger/* or the CLI")
	}

	srv := api.NewHTTPServer(cfg.HTTP.Port, cfg.HTTP.APIKey, api.Deps{
		Bookings:     a.bookings,
		Availability: a.avail,
		Jobs:         a.proc,
		Runner:       a.trigger,
		Events:       a.db,
	}, logger)

	logger.Info().Str("venue", cfg.Venue.Name).Str("timezone", cfg.Venue.Timezone).Msg("venuebook started")
	return srv.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

// startGRPCHealthServer exposes grpc.health.v1 for orchestrators that probe
// over gRPC. Status follows database reachability.
func startGRPCHealthServer(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Int("port", port).Msg("grpc health listen error")
		return
	}

	hs := health.NewServer()
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			if err := db.PingContext(ctxPing); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			cancel()
			hs.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				hs.Shutdown()
				s.GracefulStop()
				return
			case <-ticker.C:
			}
		}
	}()

	if err := s.Serve(lis); err != nil {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
