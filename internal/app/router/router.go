// Package router はginエンジンのミドルウェア構成とルーティングを定義します。
package router

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimoire/internal/api"
	authhandler "grimoire/internal/feature/auth/transport/handler"
	bookhandler "grimoire/internal/feature/books/transport/handler"
	imagehandler "grimoire/internal/feature/images/transport/handler"
	platformhandler "grimoire/internal/platform/http/handler"
	"grimoire/internal/platform/http/middleware"
	jwtmw "grimoire/internal/platform/jwt"
	"grimoire/internal/shared/ratelimiter"
)

// Handlers はルーターに登録するフィーチャーのハンドラーです。
type Handlers struct {
	Auth   *authhandler.AuthHandler
	Books  *bookhandler.BookHandler
	Upload *imagehandler.UploadHandler
}

// Options はルーター全体の設定です。
type Options struct {
	Verifier    jwtmw.Verifier
	AuthLimiter ratelimiter.Limiter
	CORSOrigins []string
	// ImagesDir はカバー画像の配信元ディレクトリです。オブジェクトストレージ利用時は空にします。
	ImagesDir   string
	ReadyChecks map[string]platformhandler.Check
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Logger(),
		api.Recovery(),
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Metrics(),
	)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	}

	// 導通確認用
	r.GET("/healthz", platformhandler.Health)
	r.HEAD("/healthz", platformhandler.Health)
	r.GET("/readyz", platformhandler.Ready(opts.ReadyChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// カバー画像は他オリジンから埋め込まれる
	if opts.ImagesDir != "" {
		images := r.Group("/images", middleware.CrossOriginResource())
		images.Static("/", opts.ImagesDir)
	}

	// 認証不要（クライアントIPごとにレート制限）
	auth := r.Group("/api/auth")
	if opts.AuthLimiter != nil {
		auth.Use(ratelimiter.Middleware(opts.AuthLimiter, "auth"))
	}
	{
		// 新規ユーザー登録
		auth.POST("/signup", h.Auth.Signup)
		// ログイン（JWT 発行）
		auth.POST("/login", h.Auth.Login)
	}

	authRequired := jwtmw.AuthRequired(opts.Verifier)
	books := r.Group("/api/books")
	{
		books.GET("", h.Books.List)
		books.GET("/bestrating", h.Books.BestRated)
		books.GET("/:id", h.Books.Get)

		// 認証必須
		// 所有者確認はアップロードの受理より先に行う
		books.POST("", authRequired, h.Upload.Accept(), h.Books.Create)
		books.PUT("/:id", authRequired, h.Books.RequireOwner(), h.Upload.Accept(), h.Books.Update)
		books.DELETE("/:id", authRequired, h.Books.RequireOwner(), h.Books.Delete)
		books.POST("/:id/rating", authRequired, h.Books.Rate)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
