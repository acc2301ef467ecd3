// Command job-manager runs the HTTP API and the background sweeper over a
// shared Postgres store. Configuration comes from the environment; every
// variable has a development default.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/api"
	"github.com/MapColonies/job-manager/liveness"
	"github.com/MapColonies/job-manager/store/postgres"
	"github.com/MapColonies/job-manager/sweeper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := jobmanager.DefaultConfig()
	cfg.ExpireInterval = getEnvDuration("EXPIRE_INTERVAL", cfg.ExpireInterval)
	cfg.ReleaseInterval = getEnvDuration("RELEASE_INTERVAL", cfg.ReleaseInterval)
	cfg.InactiveAfter = getEnvDuration("INACTIVE_AFTER", cfg.InactiveAfter)
	cfg.RaiseAttempts = getEnvBool("RAISE_ATTEMPTS", cfg.RaiseAttempts)

	store, err := postgres.New(ctx, postgresConnString(), postgres.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	mgr, err := jobmanager.New(
		jobmanager.WithConfig(cfg),
		jobmanager.WithLogger(logger),
		jobmanager.WithStore(store),
	)
	if err != nil {
		return err
	}

	var beats liveness.Registry
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		beats = liveness.NewRedis(client, cfg.InactiveAfter, liveness.WithLogger(logger))
	}

	mgr.SetSweeper(sweeper.New(store, store, beats, cfg, sweeper.WithLogger(logger)))

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/liveness", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	apiOpts := []api.Option{api.WithLogger(logger)}
	if beats != nil {
		apiOpts = append(apiOpts, api.WithLiveness(beats))
	}
	api.New(store, store, apiOpts...).Register(router)

	srv := &http.Server{
		Addr:    ":" + getEnv("SERVER_PORT", "8080"),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		return mgr.Stop(shutdownCtx)
	})

	return g.Wait()
}

func postgresConnString() string {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "job-manager")
	sslmode := getEnv("DB_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
