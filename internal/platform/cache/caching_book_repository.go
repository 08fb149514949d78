// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grimoire/internal/feature/books/domain/entity"
	"grimoire/internal/feature/books/usecase"
	"grimoire/internal/platform/logging"
	"grimoire/internal/platform/metrics"
)

// CachingBookRepository decorates a BookRepository with a Redis cache for the
// best-rated leaderboard. Every mutation invalidates the whole namespace.
type CachingBookRepository struct {
	inner     usecase.BookRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.BookRepository = (*CachingBookRepository)(nil)

// NewCachingBookRepository decorates a BookRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "books".
// A nil rdb turns the decorator into a pass-through.
func NewCachingBookRepository(rdb *redis.Client, ttl time.Duration, inner usecase.BookRepository, namespace string) *CachingBookRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "books"
	}
	return &CachingBookRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

func (c *CachingBookRepository) FindByID(ctx context.Context, id string) (*entity.Book, error) {
	return c.inner.FindByID(ctx, id)
}

func (c *CachingBookRepository) List(ctx context.Context) ([]entity.Book, error) {
	return c.inner.List(ctx)
}

// BestRated checks the cache first, then falls back to the inner repository.
func (c *CachingBookRepository) BestRated(ctx context.Context, limit int) ([]entity.Book, error) {
	if c.rdb == nil {
		return c.inner.BestRated(ctx, limit)
	}

	key := c.bestRatedKey(limit)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Book
		if err := json.Unmarshal(b, &out); err == nil {
			metrics.RecordCacheHit()
			return out, nil
		}
		// corrupted entry
		_ = c.rdb.Del(ctx, key).Err()
	}
	metrics.RecordCacheMiss()

	out, err := c.inner.BestRated(ctx, limit)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

func (c *CachingBookRepository) Create(ctx context.Context, b *entity.Book) error {
	if err := c.inner.Create(ctx, b); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachingBookRepository) Update(ctx context.Context, id string, p entity.Patch) (*entity.Book, error) {
	b, err := c.inner.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return b, nil
}

func (c *CachingBookRepository) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachingBookRepository) AddRating(ctx context.Context, id string, r entity.Rating) (*entity.Book, error) {
	b, err := c.inner.AddRating(ctx, id, r)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return b, nil
}

// invalidate drops every cached entry of the namespace. Failures are logged only.
func (c *CachingBookRepository) invalidate(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	if err := c.deleteByPattern(ctx, c.namespace+":*"); err != nil {
		logging.FromContext(ctx).Warn("cache invalidation failed", "namespace", c.namespace, "error", err)
	}
}

func (c *CachingBookRepository) bestRatedKey(limit int) string {
	return fmt.Sprintf("%s:bestrating:%d", c.namespace, limit)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingBookRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}
