package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Store     StoreConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Workflow  WorkflowConfig
	Broadcast BroadcastConfig
	Cache     CacheConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig selects the task record store backend: "redis" or "sqlite"
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	MutationsPerMin int
	UploadsPerHour  int
	EventsPerMin    int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// WorkflowConfig controls how workflow events reach the tracker and how
// often jobs are reconciled against the task record store
type WorkflowConfig struct {
	Async             bool
	ReconcileInterval time.Duration
	StaleAfter        time.Duration
}

// BroadcastConfig selects the delta fan-out: "local" or "redis"
type BroadcastConfig struct {
	Relay string
}

type CacheConfig struct {
	StatusSize int
}

func Load() (*Config, error) {
	// Docker Swarm secrets
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.driver", "STORE_DRIVER")
	_ = viper.BindEnv("store.sqlite_path", "SQLITE_PATH")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("workflow.async", "WORKFLOW_ASYNC")
	_ = viper.BindEnv("workflow.reconcile_interval", "WORKFLOW_RECONCILE_INTERVAL")
	_ = viper.BindEnv("workflow.stale_after", "WORKFLOW_STALE_AFTER")
	_ = viper.BindEnv("broadcast.relay", "BROADCAST_RELAY")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("store.driver", "redis")
	viper.SetDefault("store.sqlite_path", "data/cleanflow.db")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.mutations_per_min", 120)
	viper.SetDefault("ratelimit.uploads_per_hour", 200)
	viper.SetDefault("ratelimit.events_per_min", 600)
	viper.SetDefault("workflow.async", false)
	viper.SetDefault("workflow.reconcile_interval", "5m")
	viper.SetDefault("workflow.stale_after", "12h")
	viper.SetDefault("broadcast.relay", "local")
	viper.SetDefault("cache.status_size", 1024)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(viper.GetString("store.driver")),
			SQLitePath: viper.GetString("store.sqlite_path"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			MutationsPerMin: viper.GetInt("ratelimit.mutations_per_min"),
			UploadsPerHour:  viper.GetInt("ratelimit.uploads_per_hour"),
			EventsPerMin:    viper.GetInt("ratelimit.events_per_min"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Workflow: WorkflowConfig{
			Async:             viper.GetBool("workflow.async"),
			ReconcileInterval: viper.GetDuration("workflow.reconcile_interval"),
			StaleAfter:        viper.GetDuration("workflow.stale_after"),
		},
		Broadcast: BroadcastConfig{
			Relay: strings.ToLower(viper.GetString("broadcast.relay")),
		},
		Cache: CacheConfig{
			StatusSize: viper.GetInt("cache.status_size"),
		},
	}

	return cfg, nil
}
