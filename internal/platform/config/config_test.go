package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "GO_ENV", "PORT", "STORE_DRIVER", "DB_CONNECT_TIMEOUT", "TOKEN_TTL",
		"CORS_ORIGINS", "IMAGE_STORE", "IMAGE_MAX_WIDTH", "IMAGE_QUALITY", "IMAGE_MAX_PIXELS", "UPLOAD_MAX_SIZE",
		"PUBLIC_BASE_URL", "REDIS_ADDR", "RUN_MIGRATIONS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.DBConnectTimeout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, ImageStoreLocal, cfg.ImageStore)
	assert.Equal(t, 500, cfg.ImageMaxWidth)
	assert.Equal(t, 70, cfg.ImageQuality)
	assert.Equal(t, 40_000_000, cfg.ImageMaxPixels)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxSize)
	assert.Equal(t, "http://localhost:4000", cfg.PublicBaseURL)
	assert.True(t, cfg.RunMigrations)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_DRIVER", "MONGO")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("PUBLIC_BASE_URL", "https://api.grimoire.test/")
	t.Setenv("TOKEN_TTL", "2h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "https://api.grimoire.test", cfg.PublicBaseURL)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("TOKEN_TTL", "forever")
	t.Setenv("RUN_MIGRATIONS", "maybe")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "TOKEN_TTL")
	assert.Contains(t, err.Error(), "RUN_MIGRATIONS")
}

func validConfig() *Config {
	return &Config{
		Port:           4000,
		StoreDriver:    DriverSQLite,
		SQLitePath:     "grimoire.db",
		TokenSecret:    "secret",
		TokenTTL:       24 * time.Hour,
		ImageStore:     ImageStoreLocal,
		ImagesDir:      "images",
		ImageMaxWidth:  500,
		ImageQuality:   70,
		ImageMaxPixels: 40_000_000,
		UploadMaxSize:  10 << 20,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.TokenSecret = "" }, "TOKEN_SECRET"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mysql" }, "STORE_DRIVER"},
		{"mongo without uri", func(c *Config) { c.StoreDriver = DriverMongo }, "MONGODB_URI"},
		{"postgres without credentials", func(c *Config) { c.StoreDriver = DriverPostgres }, "DATABASE_URL"},
		{"minio without credentials", func(c *Config) { c.ImageStore = ImageStoreMinio }, "MINIO_ENDPOINT"},
		{"quality out of range", func(c *Config) { c.ImageQuality = 0 }, "IMAGE_QUALITY"},
		{"no pixel budget", func(c *Config) { c.ImageMaxPixels = 0 }, "IMAGE_MAX_PIXELS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMinioBaseURL(t *testing.T) {
	cfg := &Config{MinioEndpoint: "minio:9000"}
	assert.Equal(t, "http://minio:9000", cfg.MinioBaseURL())

	cfg.MinioUseSSL = true
	assert.Equal(t, "https://minio:9000", cfg.MinioBaseURL())

	cfg.MinioPublicURL = "https://cdn.grimoire.test"
	assert.Equal(t, "https://cdn.grimoire.test", cfg.MinioBaseURL())
}
