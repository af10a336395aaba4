package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultLinkTokenSecret = "change-me-link-token-secret"
	defaultLocalSigningKey = "change-me-local-signing-key"
)

type Config struct {
	AppEnv        string          `mapstructure:"app_env"`
	HTTP          HTTPConfig      `mapstructure:"http"`
	PublicBaseURL string          `mapstructure:"public_base_url"`
	DatabaseURL   string          `mapstructure:"database_url"`
	JWTSecret     string          `mapstructure:"jwt_secret"`
	LinkToken     LinkTokenConfig `mapstructure:"link_token"`
	BcryptCost    int             `mapstructure:"bcrypt_cost"`
	CORS          CORSConfig      `mapstructure:"cors"`
	Log           LogConfig       `mapstructure:"log"`
	Storage       StorageConfig   `mapstructure:"storage"`
	AccessLog     AccessLogConfig `mapstructure:"access_log"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LinkTokenConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects and parameterises the blob backend.
// Endpoint, Region, Bucket, AccessKey, SecretKey and Domain apply to cloud providers only.
type StorageConfig struct {
	Provider        string        `mapstructure:"provider"`
	Delivery        string        `mapstructure:"delivery"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ExistsCacheSize int           `mapstructure:"exists_cache_size"`
	ExistsCacheTTL  time.Duration `mapstructure:"exists_cache_ttl"`
	LocalDir        string        `mapstructure:"local_dir"`
	LocalSigningKey string        `mapstructure:"local_signing_key"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKey       string        `mapstructure:"access_key"`
	SecretKey       string        `mapstructure:"secret_key"`
	Domain          string        `mapstructure:"domain"`
}

type AccessLogConfig struct {
	Buffer  int `mapstructure:"buffer"`
	Workers int `mapstructure:"workers"`
}

type RateLimitConfig struct {
	VerifyRPS   float64 `mapstructure:"verify_rps"`
	VerifyBurst int     `mapstructure:"verify_burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("database_url", "file:linkvault.db?_pragma=busy_timeout(5000)")
	v.SetDefault("jwt_secret", defaultJWTSecret)
	v.SetDefault("link_token.secret", defaultLinkTokenSecret)
	v.SetDefault("link_token.ttl", "15m")
	v.SetDefault("bcrypt_cost", bcrypt.DefaultCost)
	v.SetDefault("cors.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.delivery", "url")
	v.SetDefault("storage.signed_url_ttl", "5m")
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("storage.max_retries", 3)
	v.SetDefault("storage.exists_cache_size", 1024)
	v.SetDefault("storage.exists_cache_ttl", "30s")
	v.SetDefault("storage.local_dir", "./blobs")
	v.SetDefault("storage.local_signing_key", defaultLocalSigningKey)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.domain", "")
	v.SetDefault("access_log.buffer", 1024)
	v.SetDefault("access_log.workers", 2)
	v.SetDefault("rate_limit.verify_rps", 1.0)
	v.SetDefault("rate_limit.verify_burst", 5)
}

// Load reads .env, an optional config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Storage.Provider = strings.ToLower(strings.TrimSpace(cfg.Storage.Provider))
	cfg.Storage.Delivery = strings.ToLower(strings.TrimSpace(cfg.Storage.Delivery))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	cfg.CORS.AllowedOrigins = splitOrigins(cfg.CORS.AllowedOrigins)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProdLike reports whether the config targets a production environment.
func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

func validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.LinkToken.TTL <= 0 {
		return fmt.Errorf("LINK_TOKEN_TTL must be > 0")
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch cfg.Storage.Provider {
	case "local", "aliyun", "tencent", "qiniu":
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be one of: local, aliyun, tencent, qiniu")
	}
	if cfg.Storage.Delivery != "url" && cfg.Storage.Delivery != "stream" {
		return fmt.Errorf("STORAGE_DELIVERY must be one of: url, stream")
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("STORAGE_SIGNED_URL_TTL must be > 0")
	}
	if cfg.Storage.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be > 0")
	}
	if cfg.Storage.MaxRetries < 0 {
		return fmt.Errorf("STORAGE_MAX_RETRIES must be >= 0")
	}
	if cfg.Storage.Provider != "local" && cfg.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required for provider %s", cfg.Storage.Provider)
	}
	if cfg.AccessLog.Buffer <= 0 || cfg.AccessLog.Workers <= 0 {
		return fmt.Errorf("ACCESS_LOG_BUFFER and ACCESS_LOG_WORKERS must be > 0")
	}
	if cfg.RateLimit.VerifyRPS <= 0 || cfg.RateLimit.VerifyBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_VERIFY_RPS and RATE_LIMIT_VERIFY_BURST must be > 0")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.LinkToken.Secret, defaultLinkTokenSecret) {
			return fmt.Errorf("in prod/release LINK_TOKEN_SECRET must be set and not default")
		}
		if cfg.Storage.Provider == "local" && isEmptyOrDefault(cfg.Storage.LocalSigningKey, defaultLocalSigningKey) {
			return fmt.Errorf("in prod/release STORAGE_LOCAL_SIGNING_KEY must be set and not default")
		}
	}

	return nil
}

func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
