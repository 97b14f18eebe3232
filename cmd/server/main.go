// storyforge — content-generation orchestration core.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyforge/storyforge/internal/api/rest"
	"github.com/storyforge/storyforge/internal/cache"
	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/logging"
	"github.com/storyforge/storyforge/internal/orchestrator"
	"github.com/storyforge/storyforge/internal/resolve"
	"github.com/storyforge/storyforge/internal/services"
	"github.com/storyforge/storyforge/internal/storage"
	"github.com/storyforge/storyforge/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logging.New(cfg.Logging)
	logging.SetDefault(appLogger)

	appLogger.Info("starting storyforge", "version", "1.0.0", "port", cfg.Server.Port)

	tracingProvider, err := tracing.NewProvider(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    true,
		SampleRate:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		appLogger.Warn("failed to initialize tracing provider", "error", err)
	}
	defer func() {
		if tracingProvider != nil {
			if err := tracingProvider.Shutdown(context.Background()); err != nil {
				appLogger.Error("tracing provider shutdown failed", "error", err)
			}
		}
	}()

	db, err := storage.Connect(cfg.Database)
	if err != nil {
		appLogger.Warn("database unavailable, trail persistence disabled", "error", err)
		db = nil
	} else {
		defer db.Close()
		appLogger.Info("database connected", "max_conns", cfg.Database.MaxConnections)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Warn("redis unavailable, generation cache is in-process only", "error", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
		appLogger.Info("redis connected")
	}

	deps := orchestrator.Dependencies{
		Resolver:   resolve.New(nil),
		Prompt:     services.NewPromptClient(cfg.Services.Prompt),
		Content:    services.NewContentClient(cfg.Services.Content),
		Quality:    services.NewQualityClient(cfg.Services.Quality),
		Constraint: services.NewConstraintClient(cfg.Services.Constraint),
		Character:  services.NewCharacterClient(cfg.Services.Character),
		Cache:      cache.NewGenerationCache(cfg.Cache, redisCache),
		ExprCache:  cache.NewExprCache(cfg.Cache.FingerprintLRU),
		Logger:     appLogger,
	}
	if db != nil {
		deps.Repo = storage.NewTrailRepository(db)
	}

	orch := orchestrator.New(cfg, deps, orchestrator.DefaultConfig())
	appLogger.Info("orchestrator initialized")

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "storyforge"
	}
	router := rest.NewRouter(appLogger, orch, db, redisCache, serviceName)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		appLogger.Info("server shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}

		appLogger.Info("server stopped")
	}
}
