// Package api はフィーチャー間で共有するHTTPレスポンス型とエラー描画を提供します。
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// genericInternalMessage は本番環境でエラー詳細を隠す際に返すメッセージです。
const genericInternalMessage = "internal server error"

// ErrorResponse は単一エラーのレスポンスボディです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// FieldError はフィールド単位のバリデーションエラーです。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse はフィールド単位のバリデーションエラー一覧です。
type ValidationErrorResponse struct {
	Errors []FieldError `json:"errors"`
}

// MessageResponse はメッセージのみのレスポンスボディです。
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteError は err を {"error": ...} として書き込み、処理を中断します。
// gin がリリースモード（本番）の場合、5xx のメッセージは汎用文言に置き換えます。
func WriteError(c *gin.Context, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if status >= http.StatusInternalServerError && gin.Mode() == gin.ReleaseMode {
		msg = genericInternalMessage
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// WriteUnexpected は想定外のエラー（ストア障害など）を書き込みます。
// リリースモードではステータスに関係なくメッセージを汎用文言に置き換えます。
func WriteUnexpected(c *gin.Context, status int, err error) {
	if gin.Mode() == gin.ReleaseMode {
		c.AbortWithStatusJSON(status, ErrorResponse{Error: genericInternalMessage})
		return
	}
	WriteError(c, status, err)
}

// WriteValidationErrors はバインディングエラーを 400 {"errors": [...]} として書き込みます。
func WriteValidationErrors(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ValidationErrorResponse{Errors: FieldErrors(err)})
}

// FieldErrors は validator のエラーを JSON フィールド名ベースの一覧に変換します。
// それ以外のエラー（JSON構文エラー等）は body に対する単一エラーになります。
func FieldErrors(err error) []FieldError {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []FieldError{{Field: "body", Message: "invalid request body"}}
	}
	out := make([]FieldError, 0, len(ves))
	for _, fe := range ves {
		out = append(out, FieldError{Field: lowerFirst(fe.Field()), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email", "account_email":
		return "must be a valid email address"
	case "password_bytes":
		return "must be at most 72 bytes long"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// Recovery はパニックを回復し、他のエラーと同じ JSON 形式で 500 を返すミドルウェアです。
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("panic recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", strings.TrimSpace(c.Request.URL.Path),
		)
		WriteError(c, http.StatusInternalServerError, fmt.Errorf("panic: %v", recovered))
	})
}
