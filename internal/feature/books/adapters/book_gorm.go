// Package adapters はbooksフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"grimoire/internal/feature/books/domain/entity"
	"grimoire/internal/feature/books/usecase"
)

// BookModel はbooksテーブルの行です。
type BookModel struct {
	ID            string        `gorm:"primaryKey;size:36"`
	OwnerID       string        `gorm:"size:36;not null;index"`
	Title         string        `gorm:"not null"`
	Author        string        `gorm:"not null"`
	ImageURL      string        `gorm:"not null"`
	ImageKey      string        `gorm:"not null"`
	Year          int           `gorm:"not null"`
	Genre         string        `gorm:"not null"`
	AverageRating float64       `gorm:"not null;default:0;index"`
	Ratings       []RatingModel `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName はテーブル名を返します。
func (BookModel) TableName() string { return "books" }

// RatingModel はbook_ratingsテーブルの行です。(book_id, user_id) は一意です。
type RatingModel struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	BookID    string  `gorm:"size:36;not null;uniqueIndex:idx_book_ratings_book_user"`
	UserID    string  `gorm:"size:36;not null;uniqueIndex:idx_book_ratings_book_user"`
	Grade     float64 `gorm:"not null"`
	CreatedAt time.Time
}

// TableName はテーブル名を返します。
func (RatingModel) TableName() string { return "book_ratings" }

// Models はマイグレーション対象のモデルを返します。
func Models() []any {
	return []any{&BookModel{}, &RatingModel{}}
}

// bookGorm はBookRepositoryインターフェースのGORM実装です（postgres / sqlite）。
type bookGorm struct {
	db *gorm.DB
}

var _ usecase.BookRepository = (*bookGorm)(nil)

// NewBookGorm は指定されたgorm.DB接続でbookGormの新しいインスタンスを生成します。
func NewBookGorm(db *gorm.DB) *bookGorm {
	return &bookGorm{db: db}
}

// Create は書籍とシード評価を1トランザクションで保存します。
func (r *bookGorm) Create(ctx context.Context, b *entity.Book) error {
	if b == nil {
		return errors.New("book is nil")
	}
	m := toModel(b)
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&m).Error
	}); err != nil {
		return err
	}
	b.CreatedAt = m.CreatedAt
	b.UpdatedAt = m.UpdatedAt
	return nil
}

// FindByID はIDで書籍を取得します。存在しない場合 usecase.ErrBookNotFound を返します。
func (r *bookGorm) FindByID(ctx context.Context, id string) (*entity.Book, error) {
	return findBook(r.db.WithContext(ctx), id)
}

// List は全書籍を作成順で返します。
func (r *bookGorm) List(ctx context.Context) ([]entity.Book, error) {
	var rows []BookModel
	err := withRatings(r.db.WithContext(ctx)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// BestRated は平均評価の降順で最大 limit 件を返します。
func (r *bookGorm) BestRated(ctx context.Context, limit int) ([]entity.Book, error) {
	var rows []BookModel
	err := withRatings(r.db.WithContext(ctx)).
		Order("average_rating DESC, created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// Update は patch の非nilフィールドのみを更新します。
func (r *bookGorm) Update(ctx context.Context, id string, p entity.Patch) (*entity.Book, error) {
	var out *entity.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := patchColumns(p)
		if len(fields) > 0 {
			res := tx.Model(&BookModel{}).Where("id = ?", id).Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return usecase.ErrBookNotFound
			}
		}
		b, err := findBook(tx, id)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete は書籍と評価を削除します。
func (r *bookGorm) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&RatingModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&BookModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return usecase.ErrBookNotFound
		}
		return nil
	})
}

// AddRating は評価の重複チェック・追加・平均の再計算を1トランザクションで行います。
// postgresでは書籍行をロックし、同時評価でも平均が全評価から計算されることを保証します。
func (r *bookGorm) AddRating(ctx context.Context, id string, rating entity.Rating) (*entity.Book, error) {
	var out *entity.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&BookModel{}).Select("id").Where("id = ?", id)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var locked BookModel
		if err := q.Take(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return usecase.ErrBookNotFound
			}
			return err
		}

		row := RatingModel{BookID: id, UserID: rating.UserID, Grade: rating.Grade}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "book_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return usecase.ErrDuplicateRating
		}

		var avg sql.NullFloat64
		if err := tx.Model(&RatingModel{}).
			Select("AVG(grade)").
			Where("book_id = ?", id).
			Row().Scan(&avg); err != nil {
			return fmt.Errorf("compute average: %w", err)
		}
		if err := tx.Model(&BookModel{}).
			Where("id = ?", id).
			Update("average_rating", entity.RoundAverage(avg.Float64)).Error; err != nil {
			return err
		}

		b, err := findBook(tx, id)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withRatings(db *gorm.DB) *gorm.DB {
	return db.Preload("Ratings", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

func findBook(db *gorm.DB, id string) (*entity.Book, error) {
	if id == "" {
		return nil, usecase.ErrBookNotFound
	}
	var m BookModel
	if err := withRatings(db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, usecase.ErrBookNotFound
		}
		return nil, err
	}
	b := toEntity(m)
	return &b, nil
}

func patchColumns(p entity.Patch) map[string]any {
	fields := map[string]any{}
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Author != nil {
		fields["author"] = *p.Author
	}
	if p.Year != nil {
		fields["year"] = *p.Year
	}
	if p.Genre != nil {
		fields["genre"] = *p.Genre
	}
	if p.ImageURL != nil {
		fields["image_url"] = *p.ImageURL
	}
	if p.ImageKey != nil {
		fields["image_key"] = *p.ImageKey
	}
	return fields
}

func toModel(b *entity.Book) BookModel {
	m := BookModel{
		ID:            b.ID,
		OwnerID:       b.OwnerID,
		Title:         b.Title,
		Author:        b.Author,
		ImageURL:      b.ImageURL,
		ImageKey:      b.ImageKey,
		Year:          b.Year,
		Genre:         b.Genre,
		AverageRating: b.AverageRating,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, r := range b.Ratings {
		m.Ratings = append(m.Ratings, RatingModel{BookID: b.ID, UserID: r.UserID, Grade: r.Grade})
	}
	return m
}

func toEntity(m BookModel) entity.Book {
	ratings := make([]entity.Rating, 0, len(m.Ratings))
	for _, r := range m.Ratings {
		ratings = append(ratings, entity.Rating{UserID: r.UserID, Grade: r.Grade})
	}
	return entity.Book{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Title:         m.Title,
		Author:        m.Author,
		ImageURL:      m.ImageURL,
		ImageKey:      m.ImageKey,
		Year:          m.Year,
		Genre:         m.Genre,
		Ratings:       ratings,
		AverageRating: m.AverageRating,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toEntities(rows []BookModel) []entity.Book {
	out := make([]entity.Book, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out
}
