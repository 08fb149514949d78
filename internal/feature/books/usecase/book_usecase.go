package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"grimoire/internal/feature/books/domain/entity"
	"grimoire/internal/platform/logging"
	"grimoire/internal/platform/metrics"
)

// defaultBestRatedLimit はベスト評価一覧の既定件数です。
const defaultBestRatedLimit = 10

// BookRepository は書籍の永続化層を抽象化します。
// Goの慣例に従い、インターフェースはプロバイダー（adapters）ではなくコンシューマー（usecase）が定義します。
type BookRepository interface {
	// Create は書籍とシード評価をまとめて永続化します。
	Create(ctx context.Context, book *entity.Book) error

	// FindByID はIDに一致する書籍を取得します。存在しない場合 ErrBookNotFound を返します。
	FindByID(ctx context.Context, id string) (*entity.Book, error)

	// List は全書籍を作成順で返します。
	List(ctx context.Context) ([]entity.Book, error)

	// BestRated は平均評価の降順で最大 limit 件を返します。同点は作成順です。
	BestRated(ctx context.Context, limit int) ([]entity.Book, error)

	// Update は patch の非nilフィールドのみを書き換え、更新後の書籍を返します。
	Update(ctx context.Context, id string, patch entity.Patch) (*entity.Book, error)

	// Delete は書籍とその評価を削除します。
	Delete(ctx context.Context, id string) error

	// AddRating は重複チェック・追加・平均再計算を不可分に行います。
	// 評価済みの場合 ErrDuplicateRating を返します。
	AddRating(ctx context.Context, id string, rating entity.Rating) (*entity.Book, error)
}

// ImageReleaser はカバー画像の削除を抽象化します（images フィーチャーが実装）。
type ImageReleaser interface {
	Release(ctx context.Context, key string) error
}

// BookInput は書籍作成時の入力です。
type BookInput struct {
	Title         string
	Author        string
	Year          int
	Genre         string
	AverageRating *float64
}

// bookUsecase は書籍のビジネスロジックを実装します。
type bookUsecase struct {
	books  BookRepository
	images ImageReleaser
	now    func() time.Time
	newID  func() string
}

// NewBookUsecase はbookUsecaseの新しいインスタンスを生成します。
func NewBookUsecase(books BookRepository, images ImageReleaser) *bookUsecase {
	return &bookUsecase{
		books:  books,
		images: images,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create は新しい書籍を登録します。
// 所有者のシード評価は [0,5] に丸められます。失敗時はアップロード済み画像を解放します。
func (u *bookUsecase) Create(ctx context.Context, ownerID string, in BookInput, img *entity.Image) (*entity.Book, error) {
	if img == nil {
		return nil, ErrImageRequired
	}
	book, err := u.create(ctx, ownerID, in, *img)
	if err != nil {
		u.release(ctx, img.Key)
		return nil, err
	}
	return book, nil
}

func (u *bookUsecase) create(ctx context.Context, ownerID string, in BookInput, img entity.Image) (*entity.Book, error) {
	details := entity.Details{
		Title:  strings.TrimSpace(in.Title),
		Author: strings.TrimSpace(in.Author),
		Year:   in.Year,
		Genre:  strings.TrimSpace(in.Genre),
	}
	if err := validateDetails(details); err != nil {
		return nil, err
	}
	var seed float64
	if in.AverageRating != nil {
		seed = *in.AverageRating
	}

	book := entity.NewBook(u.newID(), ownerID, details, img, seed, u.now().UTC())
	if err := u.books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	return book, nil
}

// Get はIDに一致する書籍を返します。
func (u *bookUsecase) Get(ctx context.Context, id string) (*entity.Book, error) {
	book, err := u.books.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	return book, nil
}

// List は全書籍を返します。
func (u *bookUsecase) List(ctx context.Context) ([]entity.Book, error) {
	books, err := u.books.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// BestRated は平均評価の高い書籍を返します。limit が0以下の場合は10件です。
func (u *bookUsecase) BestRated(ctx context.Context, limit int) ([]entity.Book, error) {
	if limit <= 0 {
		limit = defaultBestRatedLimit
	}
	books, err := u.books.BestRated(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list best rated books: %w", err)
	}
	return books, nil
}

// Authorize は書籍の存在と所有者を確認します。
func (u *bookUsecase) Authorize(ctx context.Context, id, callerID string) (*entity.Book, error) {
	book, err := u.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !book.OwnedBy(callerID) {
		return nil, ErrForbidden
	}
	return book, nil
}

// Update は所有者による書籍の部分更新を行います。
// 新しい画像がある場合、更新成功後に旧画像を解放し、失敗時は新画像を解放します。
func (u *bookUsecase) Update(ctx context.Context, id, callerID string, patch entity.Patch, img *entity.Image) (*entity.Book, error) {
	book, err := u.update(ctx, id, callerID, patch, img)
	if err != nil {
		if img != nil {
			u.release(ctx, img.Key)
		}
		return nil, err
	}
	return book, nil
}

func (u *bookUsecase) update(ctx context.Context, id, callerID string, patch entity.Patch, img *entity.Image) (*entity.Book, error) {
	patch = trimPatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	current, err := u.Authorize(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if img != nil {
		patch.ImageURL = &img.URL
		patch.ImageKey = &img.Key
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := u.books.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	if img != nil && current.ImageKey != img.Key {
		u.release(ctx, current.ImageKey)
	}
	return updated, nil
}

// Delete は所有者による書籍の削除を行い、その後カバー画像を解放します。
func (u *bookUsecase) Delete(ctx context.Context, id, callerID string) error {
	book, err := u.Authorize(ctx, id, callerID)
	if err != nil {
		return err
	}
	if err := u.books.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("failed to delete book: %w", err)
	}
	u.release(ctx, book.ImageKey)
	return nil
}

// Rate は呼び出し元ユーザーの評価を追加し、更新後の書籍を返します。
// 範囲外の評価はストアにアクセスせず ErrValidation を返します。
func (u *bookUsecase) Rate(ctx context.Context, id, raterID string, grade float64) (*entity.Book, error) {
	if !entity.ValidGrade(grade) {
		metrics.RecordRating("invalid")
		return nil, fmt.Errorf("%w: %v", ErrValidation, entity.ErrGradeOutOfRange)
	}
	book, err := u.books.AddRating(ctx, id, entity.Rating{UserID: raterID, Grade: grade})
	switch {
	case err == nil:
		metrics.RecordRating("accepted")
		return book, nil
	case errors.Is(err, ErrBookNotFound):
		metrics.RecordRating("not_found")
		return nil, ErrBookNotFound
	case errors.Is(err, ErrDuplicateRating):
		metrics.RecordRating("duplicate")
		return nil, ErrDuplicateRating
	default:
		metrics.RecordRating("error")
		return nil, fmt.Errorf("failed to add rating: %w", err)
	}
}

// release は画像の解放をベストエフォートで行います。失敗はログのみです。
func (u *bookUsecase) release(ctx context.Context, key string) {
	if key == "" || u.images == nil {
		return
	}
	if err := u.images.Release(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("failed to release image", "key", key, "error", err)
	}
}

func validateDetails(d entity.Details) error {
	var problems []string
	if d.Title == "" {
		problems = append(problems, "title is required")
	}
	if d.Author == "" {
		problems = append(problems, "author is required")
	}
	if d.Genre == "" {
		problems = append(problems, "genre is required")
	}
	if d.Year < 0 {
		problems = append(problems, "year must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}

func trimPatch(p entity.Patch) entity.Patch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	p.Title = trim(p.Title)
	p.Author = trim(p.Author)
	p.Genre = trim(p.Genre)
	// 画像はアップロード経由でのみ差し替える
	p.ImageURL = nil
	p.ImageKey = nil
	return p
}

func validatePatch(p entity.Patch) error {
	var problems []string
	if p.Title != nil && *p.Title == "" {
		problems = append(problems, "title must not be blank")
	}
	if p.Author != nil && *p.Author == "" {
		problems = append(problems, "author must not be blank")
	}
	if p.Genre != nil && *p.Genre == "" {
		problems = append(problems, "genre must not be blank")
	}
	if p.Year != nil && *p.Year < 0 {
		problems = append(problems, "year must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}
