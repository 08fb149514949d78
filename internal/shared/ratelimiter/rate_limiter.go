// Package ratelimiter は、クライアント単位でリクエスト頻度を制限します。
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"grimoire/internal/api"
	"grimoire/internal/platform/metrics"
)

// Limiter は、キーごとにリクエストを許可するかを判定するインターフェースです。
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// LocalLimiter は、プロセス内のトークンバケットでキーごとに制限します。
// Redis が無い単一インスタンス構成で使われます。
type LocalLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	buckets  map[string]*bucket
	lastScan time.Time
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter は window あたり limit 回を許可する LocalLimiter を生成します。
func NewLocalLimiter(limit int, window time.Duration) (*LocalLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &LocalLimiter{
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idleTTL: 2 * window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}, nil
}

// Allow は key のバケットからトークンを1つ消費できれば true を返します。
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictIdle(now)

	b, ok := l.buckets[normalizeKey(key)]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[normalizeKey(key)] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// evictIdle は一定時間使われていないバケットを破棄します。
func (l *LocalLimiter) evictIdle(now time.Time) {
	if now.Sub(l.lastScan) < l.idleTTL {
		return
	}
	l.lastScan = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisFixedWindow は、Redis の固定ウィンドウカウンタで複数インスタンス間の制限を共有します。
type RedisFixedWindow struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisFixedWindow は Redis を使う固定ウィンドウ制限を生成します。
func NewRedisFixedWindow(rdb *redis.Client, prefix string, limit int, window time.Duration) (*RedisFixedWindow, error) {
	if rdb == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "grimoire:ratelimit"
	}
	return &RedisFixedWindow{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}, nil
}

// Allow は現在のウィンドウのカウントが上限以下なら true を返します。
// Redis 障害時は認証APIを止めないよう許可側に倒し、警告ログを残します。
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) bool {
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.rdb, []string{redisKey}, windowMs).Int64()
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "error", err, "key", redisKey)
		return true
	}
	return count <= int64(l.limit)
}

func normalizeKey(key string) string {
	if key = strings.TrimSpace(key); key == "" {
		return "unknown"
	}
	return key
}

// Middleware は、クライアントIPごとに Limiter を適用する gin ミドルウェアを返します。
func Middleware(l Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		if !l.Allow(c.Request.Context(), key) {
			metrics.RecordRateLimited()
			slog.Warn("rate limit exceeded", "scope", scope, "remote_addr", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}
