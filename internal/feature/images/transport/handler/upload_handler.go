// Package handler はカバー画像アップロードのHTTPミドルウェアを提供します。
package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"grimoire/internal/api"
	"grimoire/internal/feature/images/domain/entity"
	"grimoire/internal/feature/images/usecase"
)

const (
	// ContextUpload は受理したアップロード（entity.Upload）のコンテキストキーです。
	ContextUpload = "imageUpload"
	// ContextFileValidationError は拒否したファイルの理由のコンテキストキーです。
	ContextFileValidationError = "fileValidationError"

	// FormFileField はmultipartのファイルパート名です。
	FormFileField = "image"

	defaultMaxUploadSize = 10 << 20
	formOverhead         = 1 << 20
)

var (
	errUploadTooLarge   = errors.New("file too large")
	errMalformedPayload = errors.New("malformed multipart payload")
)

// UploadHandler はmultipartのimageパートを検証するゲートです。
type UploadHandler struct {
	maxSize int64
}

// NewUploadHandler はUploadHandlerの新しいインスタンスを生成します。
func NewUploadHandler(maxSize int64) *UploadHandler {
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	return &UploadHandler{maxSize: maxSize}
}

// Accept はアップロードゲートのミドルウェアを返します。
// - multipart以外、またはimageパートがない場合は何もしない
// - サイズ超過・不正なmultipartは400で中断
// - 許可されていないMIMEタイプは中断せず ContextFileValidationError を記録
// - 受理したファイルは ContextUpload に記録
func (h *UploadHandler) Accept() gin.HandlerFunc {
	return func(c *gin.Context) {
		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			c.Next()
			return
		}

		// 他のフォーム項目の分だけ本文の上限に余裕を持たせる
		bodyLimit := h.maxSize + formOverhead
		if c.Request.ContentLength > bodyLimit {
			slog.Warn("upload rejected: too large", "limit", h.maxSize, "content_length", c.Request.ContentLength, "remote_addr", c.ClientIP())
			api.WriteError(c, http.StatusBadRequest, errUploadTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
		if err := c.Request.ParseMultipartForm(h.maxSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				slog.Warn("upload rejected: too large", "limit", h.maxSize, "remote_addr", c.ClientIP())
				api.WriteError(c, http.StatusBadRequest, errUploadTooLarge)
				return
			}
			slog.Warn("upload rejected: malformed multipart", "error", err, "remote_addr", c.ClientIP())
			api.WriteError(c, http.StatusBadRequest, errMalformedPayload)
			return
		}

		fh, err := c.FormFile(FormFileField)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				c.Next()
				return
			}
			api.WriteError(c, http.StatusBadRequest, errMalformedPayload)
			return
		}
		if fh.Size > h.maxSize {
			api.WriteError(c, http.StatusBadRequest, errUploadTooLarge)
			return
		}

		contentType := strings.ToLower(fh.Header.Get("Content-Type"))
		if !usecase.AcceptedMediaType(contentType) {
			slog.Warn("upload rejected: unsupported type", "content_type", contentType, "filename", fh.Filename, "remote_addr", c.ClientIP())
			c.Set(ContextFileValidationError, usecase.ErrUnsupportedMediaType.Error())
			c.Next()
			return
		}

		c.Set(ContextUpload, entity.Upload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
		c.Next()
	}
}

// ValidationError はゲートが記録したファイル拒否理由を返します。
func ValidationError(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextFileValidationError)
	if !ok {
		return "", false
	}
	msg, ok := v.(string)
	return msg, ok
}

// UploadFrom はゲートが受理したアップロードを返します。
func UploadFrom(c *gin.Context) (entity.Upload, bool) {
	v, ok := c.Get(ContextUpload)
	if !ok {
		return entity.Upload{}, false
	}
	up, ok := v.(entity.Upload)
	return up, ok
}
