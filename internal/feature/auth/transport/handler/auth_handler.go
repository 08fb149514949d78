// Package handler はauthフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"grimoire/internal/api"
	"grimoire/internal/feature/auth/transport/http/dto"
	"grimoire/internal/feature/auth/usecase"
)

// AuthUsecase は認証操作のユースケースを定義します。
// Goの慣例に従い、インターフェースはプロバイダー（usecase）ではなくコンシューマー（handler）が定義します。
type AuthUsecase interface {
	// Signup は指定されたメールアドレスとパスワードで新規ユーザーを登録します。
	Signup(ctx context.Context, email, password string) error
	// Login はユーザーを認証し、成功時にユーザーIDとトークンを返します。
	Login(ctx context.Context, email, password string) (*usecase.LoginResult, error)
}

// AuthHandler は認証操作のHTTPリクエストを処理します。
type AuthHandler struct {
	auth AuthUsecase
}

// NewAuthHandler はAuthHandlerの新しいインスタンスを生成します。
func NewAuthHandler(auth AuthUsecase) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Signup はユーザー登録APIエンドポイントを処理します。
// - バリデーションエラー時は400とフィールド単位のエラー一覧を返却
// - メール重複・パスワード長超過時は400を返却
// - 成功時は201を返却
func (h *AuthHandler) Signup(c *gin.Context) {
	var req dto.SignupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("signup validation failed", "error", err, "remote_addr", c.ClientIP())
		api.WriteValidationErrors(c, err)
		return
	}
	if err := h.auth.Signup(c.Request.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, usecase.ErrEmailAlreadyExists) {
			slog.Warn("signup rejected: duplicate email", "email", req.Email, "remote_addr", c.ClientIP())
			api.WriteError(c, http.StatusBadRequest, usecase.ErrEmailAlreadyExists)
			return
		}
		if errors.Is(err, usecase.ErrPasswordTooLong) {
			api.WriteError(c, http.StatusBadRequest, usecase.ErrPasswordTooLong)
			return
		}
		slog.Error("signup failed", "error", err, "email", req.Email, "remote_addr", c.ClientIP())
		api.WriteError(c, http.StatusInternalServerError, err)
		return
	}
	slog.Info("user signup successful", "email", req.Email, "remote_addr", c.ClientIP())
	c.JSON(http.StatusCreated, dto.SignupRes{Message: "user created"})
}

// Login はユーザーログインAPIエンドポイントを処理します。
// - バリデーションエラー時は400を返却
// - 認証失敗時は401を返却
// - 認証成功時は200でユーザーIDとトークンを返却
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("login validation failed", "error", err, "remote_addr", c.ClientIP())
		api.WriteValidationErrors(c, err)
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			// ユーザー列挙攻撃を防止するため、未登録とパスワード不一致を区別しない
			slog.Warn("login failed", "email", req.Email, "remote_addr", c.ClientIP())
			api.WriteError(c, http.StatusUnauthorized, usecase.ErrInvalidCredentials)
			return
		}
		slog.Error("login error", "error", err, "email", req.Email, "remote_addr", c.ClientIP())
		api.WriteError(c, http.StatusInternalServerError, err)
		return
	}
	slog.Info("user login successful", "user_id", res.UserID, "remote_addr", c.ClientIP())
	c.JSON(http.StatusOK, dto.LoginRes{UserID: res.UserID, Token: res.Token})
}
