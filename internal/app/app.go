// Package app assembles the learning hub from configuration: the key-value
// backend, the event bus, content sources and the application services. Both
// the API server and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/web3-hub/learning-hub/config"
	"github.com/web3-hub/learning-hub/internal/application/command"
	"github.com/web3-hub/learning-hub/internal/application/eventhandler"
	"github.com/web3-hub/learning-hub/internal/application/query"
	"github.com/web3-hub/learning-hub/internal/application/service"
	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/internal/infrastructure/external/github"
	"github.com/web3-hub/learning-hub/internal/infrastructure/messaging"
	"github.com/web3-hub/learning-hub/internal/infrastructure/persistence/memory"
	"github.com/web3-hub/learning-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/web3-hub/learning-hub/internal/infrastructure/persistence/redis"
	"github.com/web3-hub/learning-hub/internal/infrastructure/persistence/sqlite"
	"github.com/web3-hub/learning-hub/pkg/logger"
	"github.com/web3-hub/learning-hub/pkg/retry"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Options tune New beyond what the environment configures.
type Options struct {
	// Store replaces the configured backend, mainly in tests.
	Store shared.KVStore

	// Clock defaults to the system clock.
	Clock timeutil.Clock

	// HTTPClient is used by the content clients.
	HTTPClient *http.Client

	// LogOutput defaults to stdout.
	LogOutput io.Writer

	// Distributed selects the Redis pub/sub bus when the backend is Redis,
	// so every server instance sees badge events.
	Distributed bool
}

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App holds the wired components.
type App struct {
	Config *config.Config

	// Log is the slog logger of infrastructure components; AppLog is the
	// structured logger of the application layer.
	Log    *slog.Logger
	AppLog *logger.Logger

	Store       shared.KVStore
	Bus         shared.EventBus
	Catalog     *course.Catalog
	Search      *course.SearchIndex
	Preferences *preferences.Repository
	Progress    *service.ProgressService
	Content     *service.ContentService

	// Remote is nil when the remote origin is disabled.
	Remote *github.RemoteSource

	// Pinger is set for backends with a network connection.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	UpdatePreferences *command.UpdatePreferencesHandler
	ResetPreferences  *command.ResetPreferencesHandler
	SearchHistory     *command.SearchHistoryHandler
	SearchLessons     *query.SearchLessonsHandler
	LearnerStats      *query.GetLearnerStatsHandler
	GetPreferences    *query.GetPreferencesHandler

	closers []func() error
}

// New wires the application. On error every opened resource is released.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}

	a = &App{
		Config:  cfg,
		Log:     NewSlogLogger(cfg.Observability, opts.LogOutput),
		AppLog:  NewAppLogger(cfg.Observability, opts.LogOutput),
		Catalog: course.Default(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// STORE
	// ─────────────────────────────────────────────────────────────────────────
	a.Store = opts.Store
	var redisStore *redisstore.Store
	if a.Store == nil {
		if a.Store, redisStore, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	localBus := messaging.DefaultInMemoryEventBusConfig()
	localBus.Logger = a.Log
	if opts.Distributed && redisStore != nil {
		bus, busErr := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         redisStore.Client(),
			ChannelName:    cfg.Redis.KeyPrefix + "events",
			LocalBusConfig: localBus,
			Logger:         a.Log,
		})
		if busErr != nil {
			return nil, fmt.Errorf("redis event bus: %w", busErr)
		}
		a.Bus = bus
	} else {
		a.Bus = messaging.NewInMemoryEventBus(localBus)
	}
	a.closers = append(a.closers, a.Bus.Close)

	a.Preferences = preferences.NewRepository(a.Store)
	if err = eventhandler.Register(a.Bus, a.Preferences, a.Catalog, a.Log); err != nil {
		return nil, fmt.Errorf("register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// CONTENT SOURCES
	// ─────────────────────────────────────────────────────────────────────────
	sources, err := a.buildSources(opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	features := cfg.Features()
	progressRepo := progress.NewKVRepository(a.Store)

	a.Progress = service.NewProgressService(service.ProgressServiceConfig{
		Repository: progressRepo,
		Catalog:    a.Catalog,
		Publisher:  a.Bus,
		Clock:      opts.Clock,
		Calendar:   timeutil.NewCalendar(cfg.Location()),
		Features:   FeatureGate(features),
		Logger:     a.AppLog,
	})

	a.Content = service.NewContentService(service.ContentServiceConfig{
		Cache:     content.NewCache(cfg.Content.MaxCacheEntries, opts.Clock),
		Sources:   sources,
		Catalog:   a.Catalog,
		Store:     a.Store,
		Publisher: a.Bus,
		MaxAge:    cfg.Content.CacheTTL,
		Clock:     opts.Clock,
		Logger:    a.AppLog,
	})
	if err = a.Content.Load(ctx); err != nil {
		a.Log.Warn("failed to restore content cache", "error", err)
		err = nil
	}
	if features.IsEnabled(config.FeatureCacheOnStart, "") {
		a.Content.CleanOldCache(ctx)
	}

	a.Search = course.NewSearchIndex(a.Catalog)
	a.UpdatePreferences = command.NewUpdatePreferencesHandler(a.Preferences)
	a.ResetPreferences = command.NewResetPreferencesHandler(a.Preferences)
	a.SearchHistory = command.NewSearchHistoryHandler(a.Preferences)
	a.SearchLessons = query.NewSearchLessonsHandler(a.Search, a.Preferences)
	a.LearnerStats = query.NewGetLearnerStatsHandler(progressRepo, a.Catalog)
	a.GetPreferences = query.NewGetPreferencesHandler(a.Preferences)

	a.Log.Info("learning hub assembled",
		"storage", string(cfg.Storage.Backend),
		"sources", len(sources),
		"cached_lessons", a.Content.CacheSize(),
		"lessons", a.Catalog.LessonCount(),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// DefaultProfile validates the configured default learner profile.
func (a *App) DefaultProfile() (shared.ProfileID, error) {
	return shared.NewProfileID(a.Config.App.DefaultProfile)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

func (a *App) openStore(ctx context.Context) (shared.KVStore, *redisstore.Store, error) {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		a.Log.Warn("using in-memory storage; progress is lost on exit")
		return memory.NewStore(), nil, nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Pinger = store
		a.Log.Info("sqlite store opened", "path", cfg.Storage.SQLitePath)
		return store, nil, nil

	case config.StorageRedis:
		var store *redisstore.Store
		err := a.connectRetrier("redis").Do(ctx, func(ctx context.Context) error {
			var err error
			store, err = redisstore.NewStore(ctx, RedisConfig(cfg.Redis))
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Pinger = store
		a.Log.Info("redis store connected", "prefix", cfg.Redis.KeyPrefix)
		return store, store, nil

	case config.StoragePostgres:
		var conn *postgres.Connection
		err := a.connectRetrier("postgres").Do(ctx, func(ctx context.Context) error {
			var err error
			conn, err = postgres.NewConnection(ctx, PostgresConfig(cfg.Database))
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			conn.Close()
			return nil
		})
		a.Pinger = conn

		migrator := postgres.NewMigrator(conn)
		if err := migrator.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		if status, err := migrator.Status(ctx); err == nil {
			applied := 0
			for _, m := range status {
				if m.IsApplied {
					applied++
				}
			}
			a.Log.Info("migrations completed", "applied", applied, "total", len(status))
		}
		return postgres.NewKVStore(conn), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func (a *App) connectRetrier(backend string) *retry.Retrier {
	return retry.StorageRetrier(a.Config.Storage.ConnectAttempts,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			a.Log.Warn("storage connection failed, retrying",
				"backend", backend, "attempt", attempt, "delay", delay, "error", err)
		}),
	)
}

// RedisConfig maps the environment section onto the store config.
func RedisConfig(c config.RedisConfig) redisstore.Config {
	rc := redisstore.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	rc.KeyPrefix = c.KeyPrefix
	return rc
}

// PostgresConfig maps the environment section onto the pool config.
func PostgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	pc.MaxConns = int32(c.MaxOpenConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	pc.QueryTimeout = c.QueryTimeout
	return pc
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT SOURCES
// ══════════════════════════════════════════════════════════════════════════════

const userAgent = "web3-learning-hub"

// buildSources returns the enabled tiers in lookup order: the local mirror,
// then the remote origin.
func (a *App) buildSources(httpClient *http.Client) ([]content.Source, error) {
	cfg := a.Config.Content
	features := a.Config.Features()
	var sources []content.Source

	if features.IsEnabled(config.FeatureLocalMirror, "") {
		if cfg.IsLocalHTTP() {
			local, err := github.NewClient(github.ClientConfig{
				BaseURL:   cfg.LocalBase,
				Tier:      content.TierLocal,
				Timeout:   cfg.RequestTimeout,
				UserAgent: userAgent,
				Logger:    a.Log,
			}, httpClient)
			if err != nil {
				return nil, fmt.Errorf("local mirror: %w", err)
			}
			sources = append(sources, local)
		} else {
			dir, err := github.NewDirSource(cfg.LocalBase)
			if err != nil {
				// A missing checkout is normal on a fresh install.
				a.Log.Warn("local mirror unavailable", "dir", cfg.LocalBase, "error", err)
			} else {
				sources = append(sources, dir)
			}
		}
	}

	if features.IsEnabled(config.FeatureRemoteOrigin, "") {
		client, err := github.NewClient(github.ClientConfig{
			BaseURL:     cfg.RemoteBase(),
			Tier:        content.TierRemote,
			Timeout:     cfg.RequestTimeout,
			UserAgent:   userAgent,
			RateLimiter: github.NewRateLimiter(github.DefaultRateLimiterConfig()),
			Logger:      a.Log,
		}, httpClient)
		if err != nil {
			return nil, fmt.Errorf("remote origin: %w", err)
		}
		a.Remote = github.NewRemoteSource(client, github.RemoteConfig{
			MaxAttempts:      cfg.MaxRetries,
			BreakerThreshold: cfg.CircuitBreakerThreshold,
			BreakerCooldown:  cfg.CircuitBreakerTimeout,
			Logger:           a.Log,
		})
		sources = append(sources, a.Remote)
	}

	if len(sources) == 0 {
		a.Log.Warn("no content sources enabled; lessons render only from the cache")
	}
	return sources, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURES & LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// FeatureGate adapts the feature flags to the progress service.
func FeatureGate(flags *config.FeatureFlags) service.FeatureGate {
	names := map[service.Feature]string{
		service.FeatureStudyStreaks:  config.FeatureStudyStreaks,
		service.FeatureModuleBadges:  config.FeatureModuleBadges,
		service.FeatureSpecialBadges: config.FeatureSpecialBadges,
	}
	return func(f service.Feature, profile shared.ProfileID) bool {
		name, ok := names[f]
		if !ok {
			return false
		}
		return flags.IsEnabled(name, profile.String())
	}
}

// NewAppLogger builds the application-layer logger.
func NewAppLogger(c config.ObservabilityConfig, out io.Writer) *logger.Logger {
	return logger.New(logger.Options{
		Output:    out,
		Level:     logger.ParseLevel(c.LogLevel),
		Format:    logger.Format(strings.ToLower(c.LogFormat)),
		AddCaller: false,
	})
}

// NewSlogLogger builds the infrastructure logger with the same level and
// format.
func NewSlogLogger(c config.ObservabilityConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// ShutdownContext bounds cleanup work after the root context is gone.
func (a *App) ShutdownContext() (context.Context, context.CancelFunc) {
	timeout := a.Config.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
