// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"gorm.io/gorm"

	authadapters "grimoire/internal/feature/auth/adapters"
	authusecase "grimoire/internal/feature/auth/usecase"
	bookadapters "grimoire/internal/feature/books/adapters"
	bookusecase "grimoire/internal/feature/books/usecase"
	"grimoire/internal/platform/config"
	"grimoire/internal/platform/db"
	platformhandler "grimoire/internal/platform/http/handler"
	platformmongo "grimoire/internal/platform/mongo"
)

// Stores bundles the persistence adapters selected by STORE_DRIVER.
type Stores struct {
	Users authusecase.UserRepository
	Books bookusecase.BookRepository
	// Check reports whether the backing database is reachable.
	Check platformhandler.Check
	Close func() error
}

// NewStores opens the configured database and returns its adapters.
// Migrations (or mongo indexes) run when cfg.RunMigrations is set.
func NewStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return newMongoStores(ctx, cfg)
	case config.DriverPostgres, config.DriverSQLite:
		return newGormStores(cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newGormStores(cfg *config.Config) (*Stores, error) {
	gdb, err := db.Open(db.Config{
		Driver:         cfg.StoreDriver,
		URL:            cfg.DatabaseURL,
		Host:           cfg.DBHost,
		Port:           cfg.DBPort,
		User:           cfg.DBUser,
		Password:       cfg.DBPassword,
		Name:           cfg.DBName,
		SSLMode:        cfg.DBSSLMode,
		SQLitePath:     cfg.SQLitePath,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		models := append(authadapters.Models(), bookadapters.Models()...)
		if err := db.Migrate(gdb, models...); err != nil {
			_ = db.Close(gdb)
			return nil, err
		}
	}
	return &Stores{
		Users: authadapters.NewUserGorm(gdb),
		Books: bookadapters.NewBookGorm(gdb),
		Check: gormCheck(gdb),
		Close: func() error { return db.Close(gdb) },
	}, nil
}

func gormCheck(gdb *gorm.DB) platformhandler.Check {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func newMongoStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	client, err := platformmongo.Connect(ctx, cfg.MongoURI, cfg.DBConnectTimeout)
	if err != nil {
		return nil, err
	}
	database := client.Database(cfg.MongoDatabase)
	users := authadapters.NewUserMongo(database)
	books := bookadapters.NewBookMongo(database)

	if cfg.RunMigrations {
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		if err := books.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure book indexes: %w", err)
		}
	}
	return &Stores{
		Users: users,
		Books: books,
		Check: func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		Close: func() error { return client.Disconnect(context.Background()) },
	}, nil
}
