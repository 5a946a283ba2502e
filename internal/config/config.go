package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Cron        CronConfig        `mapstructure:"cron"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Hypurrscan  HypurrscanConfig  `mapstructure:"hypurrscan"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	TokenSync   TokenSyncConfig   `mapstructure:"token_sync"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr   string `mapstructure:"http_addr"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

type LogConfig struct {
	Level             string   `mapstructure:"level"`
	Encoding          string   `mapstructure:"encoding"`
	Development       bool     `mapstructure:"development"`
	Sampling          bool     `mapstructure:"sampling"`
	DisableCaller     bool     `mapstructure:"disable_caller"`
	DisableStacktrace bool     `mapstructure:"disable_stacktrace"`
	OutputPaths       []string `mapstructure:"output_paths"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StoreConfig selects the document store backing the token collections.
// Backend is "postgres" or "memory".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TokenListTTL  time.Duration `mapstructure:"token_list_ttl"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TokenSync string `mapstructure:"token_sync"`
}

type HyperliquidConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HypurrscanConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	WeightBudget  int           `mapstructure:"weight_budget"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	ListWeight    int           `mapstructure:"list_weight"`
	DetailWeight  int           `mapstructure:"detail_weight"`
	DeployWeight  int           `mapstructure:"deploy_weight"`
}

type TokenSyncConfig struct {
	RunOnStart bool          `mapstructure:"run_on_start"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

func Load(path string, envOnly bool) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("HT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":3000")
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 1)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("store.backend", "postgres")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.token_list_ttl", "30s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.token_sync", "@every 60s")
	v.SetDefault("hyperliquid.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("hyperliquid.timeout", "15s")
	v.SetDefault("hypurrscan.base_url", "")
	v.SetDefault("hypurrscan.timeout", "15s")
	v.SetDefault("rate_limit.weight_budget", 1200)
	v.SetDefault("rate_limit.interval", "60s")
	v.SetDefault("rate_limit.max_concurrent", 5)
	v.SetDefault("rate_limit.max_retries", 5)
	v.SetDefault("rate_limit.base_backoff", "1s")
	v.SetDefault("rate_limit.list_weight", 20)
	v.SetDefault("rate_limit.detail_weight", 20)
	v.SetDefault("rate_limit.deploy_weight", 0)
	v.SetDefault("token_sync.run_on_start", true)
	v.SetDefault("token_sync.lock_ttl", "10m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
