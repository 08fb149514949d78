// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Image stores.
const (
	ImageStoreLocal = "local"
	ImageStoreMinio = "minio"
)

// Config holds every setting the server reads at startup.
type Config struct {
	AppEnv string
	Port   int

	// Persistence
	StoreDriver      string
	DatabaseURL      string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBSSLMode        string
	SQLitePath       string
	MongoURI         string
	MongoDatabase    string
	DBConnectTimeout time.Duration
	RunMigrations    bool

	// Authentication
	TokenSecret string
	TokenTTL    time.Duration

	// Redis
	RedisAddr      string
	RedisPassword  string
	CacheTTL       time.Duration
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// HTTP
	CORSOrigins   []string
	PublicBaseURL string

	// Images
	ImageStore     string
	ImagesDir      string
	ImageMaxWidth  int
	ImageQuality   int
	ImageMaxPixels int
	UploadMaxSize  int64
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (when present) and the process environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the process environment without validating it.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.AppEnv = loadEnvString("APP_ENV", loadEnvString("GO_ENV", "development"))
	collect(loadEnvInt(&cfg.Port, "PORT", 4000))

	cfg.StoreDriver = strings.ToLower(loadEnvString("STORE_DRIVER", DriverSQLite))
	cfg.DatabaseURL = loadEnvString("DATABASE_URL", "")
	cfg.DBHost = loadEnvString("DB_HOST", "localhost")
	cfg.DBPort = loadEnvString("DB_PORT", "5432")
	cfg.DBUser = loadEnvString("DB_USER", "")
	cfg.DBPassword = loadEnvString("DB_PASSWORD", "")
	cfg.DBName = loadEnvString("DB_NAME", "grimoire")
	cfg.DBSSLMode = loadEnvString("DB_SSLMODE", "disable")
	cfg.SQLitePath = loadEnvString("SQLITE_PATH", "grimoire.db")
	cfg.MongoURI = loadEnvString("MONGODB_URI", "")
	cfg.MongoDatabase = loadEnvString("MONGODB_DATABASE", "grimoire")
	collect(loadEnvDuration(&cfg.DBConnectTimeout, "DB_CONNECT_TIMEOUT", 30*time.Second))
	collect(loadEnvBool(&cfg.RunMigrations, "RUN_MIGRATIONS", true))

	cfg.TokenSecret = loadEnvString("TOKEN_SECRET", "")
	collect(loadEnvDuration(&cfg.TokenTTL, "TOKEN_TTL", 24*time.Hour))

	cfg.RedisAddr = loadEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = loadEnvString("REDIS_PASSWORD", "")
	collect(loadEnvDuration(&cfg.CacheTTL, "CACHE_TTL", 5*time.Minute))
	collect(loadEnvInt(&cfg.AuthRateLimit, "AUTH_RATE_LIMIT", 20))
	collect(loadEnvDuration(&cfg.AuthRateWindow, "AUTH_RATE_WINDOW", time.Minute))

	cfg.CORSOrigins = loadEnvList("CORS_ORIGINS", []string{"http://localhost:3000"})
	cfg.PublicBaseURL = strings.TrimRight(loadEnvString("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")

	cfg.ImageStore = strings.ToLower(loadEnvString("IMAGE_STORE", ImageStoreLocal))
	cfg.ImagesDir = loadEnvString("IMAGES_DIR", "images")
	collect(loadEnvInt(&cfg.ImageMaxWidth, "IMAGE_MAX_WIDTH", 500))
	collect(loadEnvInt(&cfg.ImageQuality, "IMAGE_QUALITY", 70))
	collect(loadEnvInt(&cfg.ImageMaxPixels, "IMAGE_MAX_PIXELS", 40_000_000))
	var maxSize int
	collect(loadEnvInt(&maxSize, "UPLOAD_MAX_SIZE", 10<<20))
	cfg.UploadMaxSize = int64(maxSize)
	cfg.MinioEndpoint = loadEnvString("MINIO_ENDPOINT", "")
	cfg.MinioAccessKey = loadEnvString("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = loadEnvString("MINIO_SECRET_KEY", "")
	cfg.MinioBucket = loadEnvString("MINIO_BUCKET", "grimoire-images")
	collect(loadEnvBool(&cfg.MinioUseSSL, "MINIO_USE_SSL", false))
	cfg.MinioPublicURL = strings.TrimRight(loadEnvString("MINIO_PUBLIC_URL", ""), "/")

	cfg.LogLevel = strings.ToLower(loadEnvString("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(loadEnvString("LOG_FORMAT", "json"))

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.TokenSecret == "" {
		errs = append(errs, errors.New("TOKEN_SECRET is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" && c.DBUser == "" {
			errs = append(errs, errors.New("postgres requires DATABASE_URL or DB_USER"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.ImageStore {
	case ImageStoreLocal:
		if c.ImagesDir == "" {
			errs = append(errs, errors.New("IMAGES_DIR is required for the local image store"))
		}
	case ImageStoreMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			errs = append(errs, errors.New("minio image store requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported IMAGE_STORE %q", c.ImageStore))
	}
	if c.ImageMaxWidth <= 0 {
		errs = append(errs, errors.New("IMAGE_MAX_WIDTH must be positive"))
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		errs = append(errs, errors.New("IMAGE_QUALITY must be between 1 and 100"))
	}
	if c.ImageMaxPixels <= 0 {
		errs = append(errs, errors.New("IMAGE_MAX_PIXELS must be positive"))
	}
	if c.UploadMaxSize <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_SIZE must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs with production semantics.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MinioBaseURL is the public prefix of stored objects.
func (c *Config) MinioBaseURL() string {
	if c.MinioPublicURL != "" {
		return c.MinioPublicURL
	}
	scheme := "http"
	if c.MinioUseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.MinioEndpoint)
}

func loadEnvString(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func loadEnvInt(field *int, key string, defaultValue int) error {
	value := loadEnvString(key, "")
	if value == "" {
		*field = defaultValue
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %w", key, err)
	}
	*field = n
	return nil
}

func loadEnvBool(field *bool, key string, defaultValue bool) error {
	value := loadEnvString(key, "")
	if value == "" {
		*field = defaultValue
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean value for %s: %w", key, err)
	}
	*field = b
	return nil
}

func loadEnvDuration(field *time.Duration, key string, defaultValue time.Duration) error {
	value := loadEnvString(key, "")
	if value == "" {
		*field = defaultValue
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration value for %s: %w", key, err)
	}
	*field = d
	return nil
}

func loadEnvList(key string, defaultValue []string) []string {
	value := loadEnvString(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
