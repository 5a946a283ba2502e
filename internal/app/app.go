// Package app wires configuration into the stores, clients and services shared
// by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hypertoken/internal/cache"
	"hypertoken/internal/client/hyperliquid"
	"hypertoken/internal/client/hypurrscan"
	"hypertoken/internal/config"
	"hypertoken/internal/db"
	"hypertoken/internal/handler"
	"hypertoken/internal/ratelimit"
	"hypertoken/internal/repository"
	gormrepository "hypertoken/internal/repository/gorm"
	"hypertoken/internal/repository/memory"
	"hypertoken/internal/service"
)

// LoadConfig reads HT_CONFIG (default config/config.yaml). HT_ENV_ONLY=true
// skips the file.
func LoadConfig() (config.Config, error) {
	cfgPath := os.Getenv("HT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("HT_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	return config.Load(cfgPath, envOnly)
}

type App struct {
	Config  config.Config
	Logger  *zap.Logger
	DB      *db.DB
	Store   repository.TokenRepository
	Cache   cache.Store
	Limiter *ratelimit.Limiter
	Sync    *service.TokenSyncService
	Query   *service.TokenQueryService

	redis *cache.RedisStore
}

func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(); err != nil {
		a.Close()
		return nil, err
	}

	a.Limiter = ratelimit.New(ratelimit.Config{
		WeightBudget:  cfg.RateLimit.WeightBudget,
		Interval:      cfg.RateLimit.Interval,
		MaxConcurrent: cfg.RateLimit.MaxConcurrent,
		MaxRetries:    cfg.RateLimit.MaxRetries,
		BaseBackoff:   cfg.RateLimit.BaseBackoff,
	}, ratelimit.WithLogger(logger.Named("ratelimit")))

	hlClient := hyperliquid.NewClient(
		&http.Client{Timeout: cfg.Hyperliquid.Timeout},
		cfg.Hyperliquid.BaseURL,
		a.Limiter,
		hyperliquid.WithWeights(cfg.RateLimit.ListWeight, cfg.RateLimit.DetailWeight),
	)
	deploys := hypurrscan.NewClient(
		&http.Client{Timeout: cfg.Hypurrscan.Timeout},
		cfg.Hypurrscan.BaseURL,
		a.Limiter,
		cfg.RateLimit.DeployWeight,
	)

	a.Sync = &service.TokenSyncService{
		Store:   a.Store,
		Source:  hlClient,
		Deploys: deploys,
		Cache:   a.Cache,
		Logger:  logger.Named("tokensync"),
	}
	a.Query = &service.TokenQueryService{
		Repo:   a.Store,
		Cache:  a.Cache,
		TTL:    cfg.Cache.TokenListTTL,
		Logger: logger,
	}
	return a, nil
}

func (a *App) openStore() error {
	switch strings.ToLower(strings.TrimSpace(a.Config.Store.Backend)) {
	case "memory":
		a.Logger.Warn("using in-memory token store; data is lost on exit")
		a.Store = memory.New()
		return nil
	case "", "postgres":
		conn, err := db.Open(a.Config.DB)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		a.DB = conn
		if err := db.SetTimezone(conn, a.Config.DB.Timezone); err != nil {
			a.Logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(conn); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		a.Store = gormrepository.New(conn.Gorm)
		return nil
	default:
		return fmt.Errorf("unsupported store backend: %s", a.Config.Store.Backend)
	}
}

func (a *App) openCache() error {
	switch strings.ToLower(strings.TrimSpace(a.Config.Cache.Backend)) {
	case "", "memory":
		a.Cache = cache.NewMemoryStore()
		return nil
	case "redis":
		if a.Config.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
		a.redis = cache.NewRedisStore(&redis.Options{
			Addr:     a.Config.Cache.RedisAddr,
			Password: a.Config.Cache.RedisPassword,
			DB:       a.Config.Cache.RedisDB,
		})
		a.Cache = a.redis
		return nil
	default:
		return fmt.Errorf("unsupported cache backend: %s", a.Config.Cache.Backend)
	}
}

// ReadinessChecks pings the configured backends.
func (a *App) ReadinessChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{}
	if a.DB != nil {
		checks["db"] = func(ctx context.Context) error { return db.Ping(ctx, a.DB) }
	}
	if a.redis != nil {
		checks["cache"] = a.redis.Ping
	}
	return checks
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if err := db.Close(a.DB); err != nil {
		a.Logger.Warn("db close failed", zap.Error(err))
	}
}
