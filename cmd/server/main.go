// Package main - точка входа HTTP API Web3 Learning Hub.
//
// Сервер отдаёт прогресс уроков, бейджи, контент уроков с кэшем и поиск,
// а в фоне выполняет обслуживание кэша контента (очистка, сохранение,
// прогрев).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/web3-hub/learning-hub/config"
	"github.com/web3-hub/learning-hub/internal/app"
	httpserver "github.com/web3-hub/learning-hub/internal/interface/http"
	"github.com/web3-hub/learning-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. СБОРКА ПРИЛОЖЕНИЯ (хранилище, шина событий, источники, сервисы)
	// ─────────────────────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.Options{Distributed: true})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			application.Log.Error("failed to release resources", "error", err)
		}
	}()

	log := application.Log
	log.Info("starting Web3 Learning Hub API",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"storage", string(cfg.Storage.Backend),
		"timezone", cfg.Location().String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewStoreCheck(application.Store))
	if application.Pinger != nil {
		health.AddCheck("store_connection", handlers.NewPingCheck(application.Pinger))
	}
	if remote := application.Remote; remote != nil {
		health.AddOptionalCheck("remote_origin", handlers.NewBreakerCheck(remote))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Jobs.Enabled {
		sched, err := application.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to configure scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.Version = cfg.App.Version

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Progress:                 application.Progress,
		Content:                  application.Content,
		Catalog:                  application.Catalog,
		UpdatePreferencesHandler: application.UpdatePreferences,
		ResetPreferencesHandler:  application.ResetPreferences,
		SearchHistoryHandler:     application.SearchHistory,
		SearchLessonsHandler:     application.SearchLessons,
		GetLearnerStatsHandler:   application.LearnerStats,
		GetPreferencesHandler:    application.GetPreferences,
		Logger:                   application.AppLog,
		HealthChecker:            health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("Web3 Learning Hub API is running", "http_address", server.Address())

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := application.ShutdownContext()
	defer cancel()

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	// 1. Перестаём принимать запросы
	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Сохраняем кэш контента, чтобы не скачивать уроки заново
	if err := application.Content.Save(shutdownCtx); err != nil {
		log.Error("failed to persist content cache", "error", err)
		shutdownErr = err
	}

	// 3. Планировщик, шина событий и хранилище закроются через defer

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}
