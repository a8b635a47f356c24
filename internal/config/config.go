package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/draftledger/draftledger/backend/go-services/internal/storage"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Keycloak   KeycloakConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	MinIO      storage.MinIOConfig
	Versioning VersioningConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is host:port for http.Server.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// StorageConfig selects the document repository: memory, sqlite or mongo.
type StorageConfig struct {
	Backend    string
	SQLitePath string
}

type MongoDBConfig struct {
	URI             string
	Database        string
	Collection      string
	Timeout         time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
	// JWKSURL skips OIDC discovery when set.
	JWKSURL string
}

// Issuer is the realm issuer URL Keycloak puts in the iss claim.
func (k KeycloakConfig) Issuer() string {
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	// Backend is memory or redis.
	Backend string
	RPS     float64
	Burst   int
	Window  time.Duration
}

type VersioningConfig struct {
	MaxContentChars int
	// LockBackend is local or redis.
	LockBackend string
	LockTTL     time.Duration
	LockWait    time.Duration
	ExportTTL   time.Duration
}

// AuthConfig.Mode is oidc, jwt or header.
type AuthConfig struct {
	Mode          string
	TrustedHeader string
}

// LoadConfig loads configuration from environment variables and an optional
// .env file (ENV_FILE overrides the path).
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5002")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("SQLITE_PATH", "draftledger.db")
	v.SetDefault("MONGODB_DATABASE", "draftledger")
	v.SetDefault("MONGODB_COLLECTION", "documents")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "draftledger")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_BACKEND", "memory")
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", 1)
	v.SetDefault("MINIO_BUCKET", "draftledger-snapshots")
	v.SetDefault("VERSIONING_MAX_CONTENT_CHARS", 5000)
	v.SetDefault("VERSIONING_LOCK_BACKEND", "local")
	v.SetDefault("VERSIONING_LOCK_TTL", 10)
	v.SetDefault("VERSIONING_LOCK_WAIT", 5)
	v.SetDefault("VERSIONING_EXPORT_TTL", 15)
	v.SetDefault("AUTH_MODE", "oidc")
	v.SetDefault("AUTH_TRUSTED_HEADER", "X-User-Id")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			LogLevel:     v.GetString("LOG_LEVEL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(v.GetString("STORAGE_BACKEND")),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGODB_URI"),
			Database:        v.GetString("MONGODB_DATABASE"),
			Collection:      v.GetString("MONGODB_COLLECTION"),
			Timeout:         time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ConnectAttempts: v.GetInt("MONGODB_CONNECT_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:      v.GetString("KEYCLOAK_URL"),
			Realm:    v.GetString("KEYCLOAK_REALM"),
			ClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
			JWKSURL:  v.GetString("KEYCLOAK_JWKS_URL"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			Backend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  time.Duration(v.GetInt("RATE_LIMIT_WINDOW")) * time.Second,
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Versioning: VersioningConfig{
			MaxContentChars: v.GetInt("VERSIONING_MAX_CONTENT_CHARS"),
			LockBackend:     strings.ToLower(v.GetString("VERSIONING_LOCK_BACKEND")),
			LockTTL:         time.Duration(v.GetInt("VERSIONING_LOCK_TTL")) * time.Second,
			LockWait:        time.Duration(v.GetInt("VERSIONING_LOCK_WAIT")) * time.Second,
			ExportTTL:       time.Duration(v.GetInt("VERSIONING_EXPORT_TTL")) * time.Minute,
		},
		Auth: AuthConfig{
			Mode:          strings.ToLower(v.GetString("AUTH_MODE")),
			TrustedHeader: v.GetString("AUTH_TRUSTED_HEADER"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" && cfg.Auth.Mode != "jwt" {
		logger.Warnf("JWT_SECRET is not set; issue-token and jwt auth are unavailable")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("environment variable MONGODB_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (memory|sqlite|mongo)", c.Storage.Backend)
	}

	switch c.Auth.Mode {
	case "oidc":
		if c.Keycloak.URL == "" || c.Keycloak.Realm == "" || c.Keycloak.ClientID == "" {
			return fmt.Errorf("KEYCLOAK_URL, KEYCLOAK_REALM and KEYCLOAK_CLIENT_ID are required for oidc auth")
		}
	case "jwt":
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes for jwt auth")
		}
	case "header":
		if c.Auth.TrustedHeader == "" {
			return fmt.Errorf("AUTH_TRUSTED_HEADER is required for header auth")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (oidc|jwt|header)", c.Auth.Mode)
	}

	switch c.Versioning.LockBackend {
	case "local":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("REDIS_HOST is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown VERSIONING_LOCK_BACKEND %q (local|redis)", c.Versioning.LockBackend)
	}

	if c.RateLimit.Enabled && c.RateLimit.Backend == "redis" && !c.Redis.Enabled() {
		return fmt.Errorf("REDIS_HOST is required for the redis rate limiter")
	}
	if c.Versioning.MaxContentChars <= 0 {
		return fmt.Errorf("VERSIONING_MAX_CONTENT_CHARS must be positive")
	}
	return nil
}
