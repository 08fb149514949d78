// Package handler はbooksフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"grimoire/internal/api"
	"grimoire/internal/feature/books/domain/entity"
	"grimoire/internal/feature/books/transport/http/dto"
	"grimoire/internal/feature/books/usecase"
	imgentity "grimoire/internal/feature/images/domain/entity"
	imagehandler "grimoire/internal/feature/images/transport/handler"
	imgusecase "grimoire/internal/feature/images/usecase"
	jwtmw "grimoire/internal/platform/jwt"
)

// ContextBook はRequireOwnerが確認した書籍のコンテキストキーです。
const ContextBook = "book"

// bookFormField はmultipartで書籍JSONを運ぶフォーム項目名です。
const bookFormField = "book"

var (
	errImageRequired    = errors.New("image is required")
	errUnauthenticated  = errors.New("unauthenticated request")
	errImageProcessing  = errors.New("image processing failed")
	errInvalidBookField = errors.New("invalid book payload")
)

// BookUsecase は書籍操作のユースケースを定義します。
type BookUsecase interface {
	Create(ctx context.Context, ownerID string, in usecase.BookInput, img *entity.Image) (*entity.Book, error)
	Get(ctx context.Context, id string) (*entity.Book, error)
	List(ctx context.Context) ([]entity.Book, error)
	BestRated(ctx context.Context, limit int) ([]entity.Book, error)
	Update(ctx context.Context, id, callerID string, patch entity.Patch, img *entity.Image) (*entity.Book, error)
	Delete(ctx context.Context, id, callerID string) error
	Rate(ctx context.Context, id, raterID string, grade float64) (*entity.Book, error)
	Authorize(ctx context.Context, id, callerID string) (*entity.Book, error)
}

// ImageProcessor はアップロード画像の変換と保存を行います（images フィーチャーが実装）。
type ImageProcessor interface {
	Process(ctx context.Context, up imgentity.Upload) (*imgentity.StoredImage, error)
}

// BookHandler は書籍操作のHTTPリクエストを処理します。
type BookHandler struct {
	books  BookUsecase
	images ImageProcessor
}

// NewBookHandler はBookHandlerの新しいインスタンスを生成します。
func NewBookHandler(books BookUsecase, images ImageProcessor) *BookHandler {
	return &BookHandler{books: books, images: images}
}

// List は全書籍を返します。失敗時は400です。
func (h *BookHandler) List(c *gin.Context) {
	books, err := h.books.List(c.Request.Context())
	if err != nil {
		slog.Error("failed to list books", "error", err)
		api.WriteUnexpected(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBookList(books))
}

// BestRated は平均評価の高い書籍を最大10件返します。
func (h *BookHandler) BestRated(c *gin.Context) {
	books, err := h.books.BestRated(c.Request.Context(), 0)
	if err != nil {
		slog.Error("failed to list best rated books", "error", err)
		api.WriteUnexpected(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBookList(books))
}

// Get はIDに一致する書籍を返します。
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, usecase.ErrBookNotFound) {
			api.WriteError(c, http.StatusNotFound, usecase.ErrBookNotFound)
			return
		}
		slog.Error("failed to get book", "error", err, "book_id", c.Param("id"))
		api.WriteUnexpected(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewBookRes(book))
}

// Create は書籍を登録します。
// - ファイル検証エラー、書籍JSONの不備、画像なし、保存失敗は400を返却
// - 画像処理の失敗は500を返却
// - 成功時は201で書籍を返却
func (h *BookHandler) Create(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		api.WriteError(c, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	if msg, rejected := imagehandler.ValidationError(c); rejected {
		api.WriteError(c, http.StatusBadRequest, errors.New(msg))
		return
	}

	var req dto.CreateBookReq
	if err := json.Unmarshal([]byte(c.PostForm(bookFormField)), &req); err != nil {
		slog.Warn("create book: invalid payload", "error", err, "user_id", userID)
		api.WriteError(c, http.StatusBadRequest, errInvalidBookField)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		api.WriteValidationErrors(c, err)
		return
	}
	up, ok := imagehandler.UploadFrom(c)
	if !ok {
		api.WriteError(c, http.StatusBadRequest, errImageRequired)
		return
	}

	img, ok := h.process(c, up)
	if !ok {
		return
	}

	book, err := h.books.Create(c.Request.Context(), userID, usecase.BookInput{
		Title:         req.Title,
		Author:        req.Author,
		Year:          int(req.Year),
		Genre:         req.Genre,
		AverageRating: req.AverageRating,
	}, img)
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			api.WriteError(c, http.StatusBadRequest, err)
			return
		}
		slog.Error("failed to create book", "error", err, "user_id", userID)
		api.WriteUnexpected(c, http.StatusBadRequest, err)
		return
	}
	slog.Info("book created", "book_id", book.ID, "user_id", userID)
	c.JSON(http.StatusCreated, dto.NewBookRes(book))
}

// Update は書籍を部分更新します。multipart（book JSON + 任意の画像）とJSON本文の両方を受け付けます。
func (h *BookHandler) Update(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		api.WriteError(c, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	if msg, rejected := imagehandler.ValidationError(c); rejected {
		api.WriteError(c, http.StatusBadRequest, errors.New(msg))
		return
	}

	raw, err := h.updateBody(c)
	if err != nil {
		api.WriteError(c, http.StatusBadRequest, errInvalidBookField)
		return
	}
	req, err := dto.DecodeUpdate(raw)
	if err != nil {
		slog.Warn("update book: invalid payload", "error", err, "user_id", userID, "book_id", c.Param("id"))
		if errors.Is(err, dto.ErrReadOnlyField) {
			api.WriteError(c, http.StatusBadRequest, err)
			return
		}
		api.WriteError(c, http.StatusBadRequest, errInvalidBookField)
		return
	}

	var img *entity.Image
	if up, ok := imagehandler.UploadFrom(c); ok {
		if img, ok = h.process(c, up); !ok {
			return
		}
	}

	book, err := h.books.Update(c.Request.Context(), c.Param("id"), userID, req.Patch(), img)
	if err != nil {
		h.writeOwnershipError(c, err, "failed to update book")
		return
	}
	slog.Info("book updated", "book_id", book.ID, "user_id", userID)
	c.JSON(http.StatusOK, dto.UpdateRes{Message: "book updated", Book: dto.NewBookRes(book)})
}

// Delete は書籍を削除します。
func (h *BookHandler) Delete(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		api.WriteError(c, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	if err := h.books.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.writeOwnershipError(c, err, "failed to delete book")
		return
	}
	slog.Info("book deleted", "book_id", c.Param("id"), "user_id", userID)
	c.JSON(http.StatusOK, api.MessageResponse{Message: "book deleted"})
}

// Rate は認証ユーザーの評価を追加します。
// - 範囲外の評価・評価済みは400、書籍なしは404を返却
func (h *BookHandler) Rate(c *gin.Context) {
	userID, ok := jwtmw.UserID(c)
	if !ok {
		api.WriteError(c, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	var req dto.RateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		api.WriteValidationErrors(c, err)
		return
	}

	book, err := h.books.Rate(c.Request.Context(), c.Param("id"), userID, *req.Rating)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrValidation):
			api.WriteError(c, http.StatusBadRequest, err)
		case errors.Is(err, usecase.ErrDuplicateRating):
			slog.Warn("duplicate rating", "book_id", c.Param("id"), "user_id", userID)
			api.WriteError(c, http.StatusBadRequest, usecase.ErrDuplicateRating)
		case errors.Is(err, usecase.ErrBookNotFound):
			api.WriteError(c, http.StatusNotFound, usecase.ErrBookNotFound)
		default:
			slog.Error("failed to rate book", "error", err, "book_id", c.Param("id"), "user_id", userID)
			api.WriteUnexpected(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, dto.NewBookRes(book))
}

// RequireOwner は認証ユーザーが書籍の所有者であることを確認するミドルウェアです。
// AuthRequired の後、アップロードゲートの前に配置します。
func (h *BookHandler) RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := jwtmw.UserID(c)
		if !ok {
			api.WriteError(c, http.StatusUnauthorized, errUnauthenticated)
			return
		}
		book, err := h.books.Authorize(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			h.writeOwnershipError(c, err, "ownership check failed")
			return
		}
		c.Set(ContextBook, book)
		c.Next()
	}
}

func (h *BookHandler) writeOwnershipError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, usecase.ErrBookNotFound):
		api.WriteError(c, http.StatusNotFound, usecase.ErrBookNotFound)
	case errors.Is(err, usecase.ErrForbidden):
		userID, _ := jwtmw.UserID(c)
		slog.Warn("forbidden book access", "book_id", c.Param("id"), "user_id", userID)
		api.WriteError(c, http.StatusForbidden, usecase.ErrForbidden)
	case errors.Is(err, usecase.ErrValidation):
		api.WriteError(c, http.StatusBadRequest, err)
	default:
		slog.Error(msg, "error", err, "book_id", c.Param("id"))
		api.WriteUnexpected(c, http.StatusInternalServerError, err)
	}
}

// process はアップロードを変換・保存します。失敗時はレスポンスを書き込み false を返します。
func (h *BookHandler) process(c *gin.Context, up imgentity.Upload) (*entity.Image, bool) {
	stored, err := h.images.Process(c.Request.Context(), up)
	if err != nil {
		if errors.Is(err, imgusecase.ErrUnsupportedMediaType) {
			api.WriteError(c, http.StatusBadRequest, err)
			return nil, false
		}
		if errors.Is(err, imgusecase.ErrImageTooLarge) {
			slog.Warn("image rejected", "error", err, "filename", up.Filename)
			api.WriteError(c, http.StatusBadRequest, imgusecase.ErrImageTooLarge)
			return nil, false
		}
		slog.Error("image processing failed", "error", err, "filename", up.Filename)
		api.WriteError(c, http.StatusInternalServerError, errImageProcessing)
		return nil, false
	}
	return &entity.Image{Key: stored.Key, URL: stored.URL}, true
}

// updateBody は更新内容のJSONを返します。multipartの場合は book フォーム項目です。
func (h *BookHandler) updateBody(c *gin.Context) ([]byte, error) {
	if c.ContentType() == binding.MIMEMultipartPOSTForm {
		return []byte(c.PostForm(bookFormField)), nil
	}
	return c.GetRawData()
}
