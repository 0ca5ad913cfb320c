package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Scripts  ScriptsConfig  `mapstructure:"scripts"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ClamdAddr      string   `mapstructure:"clamd_addr"`
	LogLevel       string   `mapstructure:"log_level"`
	// MetricsToken 非空时 /metrics 需携带 X-Internal-Secret。
	MetricsToken   string   `mapstructure:"metrics_token"`
}

// AuthConfig 控制 JWT 签发与登录保护。
// Secrets 中第一个用于签发，全部用于校验。
type AuthConfig struct {
	Secrets               []string      `mapstructure:"secrets"`
	TokenTTL              time.Duration `mapstructure:"token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig selects where uploaded resume files live.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// ScriptsConfig 描述外部生成脚本的位置与解释器。
type ScriptsConfig struct {
	Interpreter      string        `mapstructure:"interpreter"`
	ScrapeJobs       string        `mapstructure:"scrape_jobs"`
	ResumeTailor     string        `mapstructure:"resume_tailor"`
	CoverLetter      string        `mapstructure:"cover_letter"`
	DefaultModel     string        `mapstructure:"default_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	DefaultJobsCount int           `mapstructure:"default_jobs_count"`
}

// PathsConfig contains working directories used by generation.
type PathsConfig struct {
	TempDir        string `mapstructure:"temp_dir"`
	TailoredDir    string `mapstructure:"tailored_dir"`
	CoverLetterDir string `mapstructure:"cover_letter_dir"`
}

// WorkerConfig contains asynq worker settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
	// MetricsPort 为 0 时 worker 不暴露 /metrics。
	MetricsPort int `mapstructure:"metrics_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Auth.Secrets = collectSecrets(v.GetString("auth.primary_secret"), v.GetString("auth.secondary_secret"), v.GetString("auth.extra_secrets"))
	cfg.API.AllowedOrigins = splitList(v.GetString("api.allowed_origins"))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 5001)
	v.SetDefault("api.allowed_origins", "http://localhost:3000,http://localhost:5001")
	v.SetDefault("api.log_level", "info")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobassist")
	v.SetDefault("database.user", "jobassist")
	v.SetDefault("database.password", "jobassist")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "uploads/resumes")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("scripts.interpreter", "python3")
	v.SetDefault("scripts.scrape_jobs", "scripts/scrape_jobs.py")
	v.SetDefault("scripts.resume_tailor", "scripts/resume_tailor.py")
	v.SetDefault("scripts.cover_letter", "scripts/cover_letter_generator.py")
	v.SetDefault("scripts.default_model", "gpt-4-turbo-preview")
	v.SetDefault("scripts.timeout", time.Duration(0))
	v.SetDefault("scripts.default_jobs_count", 20)
	v.SetDefault("paths.temp_dir", "data/temp")
	v.SetDefault("paths.tailored_dir", "uploads/tailored")
	v.SetDefault("paths.cover_letter_dir", "uploads/cover_letters")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_retry", 2)
	v.SetDefault("worker.metrics_port", 0)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "PORT",
		"api.allowed_origins":            "CORS_ALLOWED_ORIGINS",
		"api.clamd_addr":                 "CLAMD_ADDR",
		"api.log_level":                  "LOG_LEVEL",
		"api.metrics_token":              "METRICS_TOKEN",
		"auth.primary_secret":            "JWT_SECRET",
		"auth.secondary_secret":          "NEXTAUTH_SECRET",
		"auth.extra_secrets":             "JWT_EXTRA_SECRETS",
		"auth.token_ttl":                 "JWT_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"storage.driver":                 "STORAGE_DRIVER",
		"storage.local_dir":              "STORAGE_LOCAL_DIR",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"scripts.interpreter":            "SCRIPT_INTERPRETER",
		"scripts.scrape_jobs":            "SCRAPE_JOBS_SCRIPT",
		"scripts.resume_tailor":          "RESUME_TAILOR_SCRIPT",
		"scripts.cover_letter":           "COVER_LETTER_SCRIPT",
		"scripts.default_model":          "COVER_LETTER_DEFAULT_MODEL",
		"scripts.timeout":                "SCRIPT_TIMEOUT",
		"scripts.default_jobs_count":     "DEFAULT_JOBS_COUNT",
		"paths.temp_dir":                 "TEMP_DIR",
		"paths.tailored_dir":             "TAILORED_DIR",
		"paths.cover_letter_dir":         "COVER_LETTER_DIR",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.max_retry":               "WORKER_MAX_RETRY",
		"worker.metrics_port":            "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// collectSecrets 按优先级汇总签名密钥并去重。
func collectSecrets(primary, secondary, extra string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, candidate := range append([]string{primary, secondary}, splitList(extra)...) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if len(cfg.Auth.Secrets) == 0 {
		return errors.New("at least one jwt secret is required (JWT_SECRET)")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("jwt ttl must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	switch cfg.Storage.Driver {
	case "local":
		if cfg.Storage.LocalDir == "" {
			return errors.New("storage local dir is required")
		}
	case "minio":
		if cfg.MinIO.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if cfg.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Scripts.Interpreter == "" {
		return errors.New("script interpreter is required")
	}
	if cfg.Scripts.DefaultJobsCount <= 0 {
		return errors.New("default jobs count must be positive")
	}
	if cfg.Paths.TempDir == "" || cfg.Paths.TailoredDir == "" || cfg.Paths.CoverLetterDir == "" {
		return errors.New("temp, tailored and cover letter dirs are required")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
