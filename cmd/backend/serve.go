package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/config"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/collections"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/execengine"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/health"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres/migrations"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/pool"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/ratelimit"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/settings"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/storage"
	httptransport "github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var reload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler tick loop and process pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), reload)
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "watch the functions directory and auto-deploy changed files")

	return cmd
}

func runServe(ctx context.Context, reload bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer dbPool.Close()

	if err := migrations.Apply(ctx, dbPool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("db connected and migrated")

	metrics.Register()
	checker := health.NewChecker(dbPool, logger, prometheus.DefaultRegisterer)

	// Repositories
	collectionRepo := postgres.NewCollectionRepository(dbPool)
	recordRepo := postgres.NewRecordRepository(dbPool)
	functionRepo := postgres.NewFunctionRepository(dbPool)
	callRepo := postgres.NewFunctionCallRepository(dbPool)
	scheduleRepo := postgres.NewScheduleRepository(dbPool)
	settingRepo := postgres.NewSettingRepository(dbPool)
	auditRepo := postgres.NewAuditRepository(dbPool)
	tokenRepo := postgres.NewTokenRepository(dbPool)

	// Domain services
	collectionsSvc := collections.NewService(collectionRepo, recordRepo)
	registrySvc := registry.NewService(functionRepo)
	identitySvc := newIdentityService(cfg, dbPool, logger)
	appTokensSvc := identity.NewAppTokenService(tokenRepo)
	settingsSvc := settings.NewService(settingRepo, auditRepo, staticDefaults(cfg))
	schedulesSvc := scheduler.NewService(scheduleRepo)

	counters := newCounterStore(cfg)

	workers := pool.New(pool.Config{
		WorkDir:  cfg.FunctionsDir,
		PoolSize: cfg.PoolSize,
		IdleTTL:  time.Duration(cfg.ColdStartTTLSec) * time.Second,
		SpawnCap: cfg.SpawnCap,
		EnvForCall: func(functionName, versionID, callID string) []string {
			return []string{
				"CALL_ID=" + callID,
				"FUNCTION_NAME=" + functionName,
				"FUNCTION_VERSION=" + versionID,
				"BACKEND_BASE_URL=http://127.0.0.1:" + cfg.Port,
			}
		},
	})
	defer workers.Shutdown()

	engine := execengine.New(execengine.Config{
		Calls:           callRepo,
		Functions:       registrySvc,
		Pool:            workers,
		Counters:        counters,
		MaxPerUser:      cfg.MaxConcurrentPerUser,
		MaxGlobal:       cfg.MaxConcurrentGlobal,
		FunctionTimeout: time.Duration(cfg.FunctionTimeoutSec) * time.Second,
	})

	if n, err := engine.RecoverAbandoned(ctx); err != nil {
		logger.Error("recover abandoned calls", "error", err)
	} else if n > 0 {
		logger.Info("recovered abandoned calls", "count", n)
	}

	var fileBackend storage.Backend
	if cfg.StorageDir != "" {
		local, err := storage.NewLocalBackend(cfg.StorageDir)
		if err != nil {
			return fmt.Errorf("storage backend: %w", err)
		}
		fileBackend = local
	}

	dispatcher := scheduler.NewDispatcher(scheduleRepo, engine, logger, time.Duration(cfg.TickIntervalSec)*time.Second, cfg.MaxSchedulesPerTick)
	go dispatcher.Start(ctx)

	if reload {
		go watchFunctions(ctx, cfg.FunctionsDir, registrySvc, engine, logger)
	}

	handlers := httptransport.Handlers{
		Auth:        handler.NewAuthHandler(identitySvc, logger),
		Collections: handler.NewCollectionHandler(collectionsSvc, logger),
		Records:     handler.NewRecordHandler(collectionsSvc, logger),
		Functions:   handler.NewFunctionHandler(registrySvc, engine, logger),
		Calls:       handler.NewCallHandler(engine, logger),
		Schedules:   handler.NewScheduleHandler(schedulesSvc, logger),
		Settings:    handler.NewSettingHandler(settingsSvc, logger),
		AppTokens:   handler.NewAppTokenHandler(appTokensSvc, logger),
		Audit:       handler.NewAuditHandler(settingsSvc, logger),
	}
	if fileBackend != nil {
		handlers.Files = handler.NewFileHandler(fileBackend, logger)
	}

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	router := httptransport.NewRouter(handlers, identitySvc, appTokensSvc, corsOrigins)
	router.GET("/livez", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})
	router.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	return nil
}

func newCounterStore(cfg *config.Config) ratelimit.Store {
	ttl := time.Duration(cfg.FunctionTimeoutSec) * time.Second * 2
	if cfg.RateLimitBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: "localhost:6379"}
		}
		return ratelimit.NewRedisStore(redis.NewClient(opts), ttl)
	}
	return ratelimit.NewMemStore(ttl)
}

// staticDefaults returns an empty map: no static config value is exposed
// through the settings service, so a settings Get finds only runtime rows.
func staticDefaults(cfg *config.Config) map[string]domain.Setting {
	return map[string]domain.Setting{}
}
