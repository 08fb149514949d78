package di

import (
	"time"

	"github.com/redis/go-redis/v9"

	bookusecase "grimoire/internal/feature/books/usecase"
	"grimoire/internal/platform/cache"
	"grimoire/internal/shared/ratelimiter"
)

// NewBookRepository wraps books with the leaderboard cache.
// If Redis is available, reads of the best-rated list go through it.
// Otherwise, the store is used directly.
func NewBookRepository(rdb *redis.Client, ttl time.Duration, books bookusecase.BookRepository) bookusecase.BookRepository {
	if rdb != nil {
		return cache.NewCachingBookRepository(rdb, ttl, books, "books")
	}
	return books
}

// NewAuthLimiter creates the limiter guarding /api/auth.
// If Redis is available, the window is shared by every instance.
// Otherwise, it falls back to an in-process limiter.
func NewAuthLimiter(rdb *redis.Client, limit int, window time.Duration) (ratelimiter.Limiter, error) {
	if rdb != nil {
		return ratelimiter.NewRedisFixedWindow(rdb, "grimoire:ratelimit", limit, window)
	}
	return ratelimiter.NewLocalLimiter(limit, window)
}
