package db

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// retryInterval は接続リトライの間隔です。
var retryInterval = 3 * time.Second

// Config はgorm接続の設定です。
type Config struct {
	// Driver は "postgres" または "sqlite" です。
	Driver string

	// URL が設定されている場合、postgres の DSN としてそのまま使われます。
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	SQLitePath string

	// ConnectTimeout は接続確立までの上限時間です（既定30秒）。
	ConnectTimeout time.Duration
}

// Opener はDSNからgorm.DBを開く関数です。テストで差し替えられます。
type Opener func(dsn string) (*gorm.DB, error)

// BuildDSN はpostgres用のDSN文字列を生成します。URLが設定されていればそれを優先します。
func BuildDSN(cfg Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslmode, connectTimeoutSeconds(cfg.ConnectTimeout))
}

func connectTimeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return 30
	}
	if s := int(d / time.Second); s > 0 {
		return s
	}
	return 1
}

// ConnectWithRetry は timeout に達するまで opener を繰り返し呼び出します。
// 期限切れの場合は最後のエラーを包んで返し、プロセスの終了は呼び出し側に委ねます。
func ConnectWithRetry(dsn string, timeout time.Duration, opener Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("db connect failed after %d attempts within %v: %w", attempt, timeout, err)
		}
		slog.Warn("db connect failed, retrying", "attempt", attempt, "error", err)
		time.Sleep(min(retryInterval, remaining))
	}
}

// Open は設定に従ってpostgresまたはsqliteへ接続します。
func Open(cfg Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch cfg.Driver {
	case "postgres":
		db, err := ConnectWithRetry(BuildDSN(cfg), timeout, func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), gcfg)
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to postgres", "host", cfg.Host, "database", cfg.Name)
		return db, nil
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, errors.New("sqlite path is required")
		}
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		slog.Info("connected to sqlite", "path", cfg.SQLitePath)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", cfg.Driver)
	}
}

// Migrate はモデルのスキーマを作成・更新します。
func Migrate(db *gorm.DB, models ...any) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close は基盤の接続プールを閉じます。
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
