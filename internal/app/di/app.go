package di

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"

	"grimoire/internal/app/router"
	authhandler "grimoire/internal/feature/auth/transport/handler"
	authusecase "grimoire/internal/feature/auth/usecase"
	bookhandler "grimoire/internal/feature/books/transport/handler"
	bookusecase "grimoire/internal/feature/books/usecase"
	imagehandler "grimoire/internal/feature/images/transport/handler"
	"grimoire/internal/platform/config"
	platformhandler "grimoire/internal/platform/http/handler"
	jwtmw "grimoire/internal/platform/jwt"
	infraredis "grimoire/internal/platform/redis"
)

// App is the wired HTTP application and the resources it holds.
type App struct {
	Router  *gin.Engine
	closers []func() error
}

// Close releases every resource in reverse acquisition order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// NewApp opens the stores and wires every feature into the router.
// Persistence failures are returned; Redis is optional.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	// db
	stores, err := NewStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, stores.Close)
	checks := map[string]platformhandler.Check{"db": stores.Check}

	// Redis
	var rdb *redisv9.Client
	if cfg.RedisAddr == "" {
		slog.Info("REDIS_ADDR not set. Running without cache.")
	} else if tmp, err := infraredis.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
		slog.Warn("Redis unavailable. Running without cache.", "error", err)
	} else {
		rdb = tmp
		app.closers = append(app.closers, rdb.Close)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Images
	images, err := NewImageStore(cfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if images.Check != nil {
		checks["images"] = images.Check
	}
	pipeline := NewImagePipeline(cfg, images.Store)

	limiter, err := NewAuthLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	// Repository
	books := NewBookRepository(rdb, cfg.CacheTTL, stores.Books)

	// Usecase
	tokens := jwtmw.NewManager(cfg.TokenSecret, cfg.TokenTTL)
	authUC := authusecase.NewAuthUsecase(stores.Users, tokens)
	bookUC := bookusecase.NewBookUsecase(books, pipeline)

	// Handler
	handlers := router.Handlers{
		Auth:   authhandler.NewAuthHandler(authUC),
		Books:  bookhandler.NewBookHandler(bookUC, pipeline),
		Upload: imagehandler.NewUploadHandler(cfg.UploadMaxSize),
	}

	// ルータ生成
	app.Router = router.NewRouter(handlers, router.Options{
		Verifier:    tokens,
		AuthLimiter: limiter,
		CORSOrigins: cfg.CORSOrigins,
		ImagesDir:   images.ServeDir,
		ReadyChecks: checks,
	})
	return app, nil
}
