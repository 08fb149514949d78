package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"grimoire/internal/feature/books/domain/entity"
	"grimoire/internal/feature/books/usecase"
)

const booksCollection = "books"

// bookDocument はbooksコレクションのドキュメント表現です。評価は埋め込みです。
type bookDocument struct {
	ID            string           `bson:"_id"`
	OwnerID       string           `bson:"userId"`
	Title         string           `bson:"title"`
	Author        string           `bson:"author"`
	ImageURL      string           `bson:"imageUrl"`
	ImageKey      string           `bson:"imageKey"`
	Year          int              `bson:"year"`
	Genre         string           `bson:"genre"`
	Ratings       []ratingDocument `bson:"ratings"`
	AverageRating float64          `bson:"averageRating"`
	CreatedAt     time.Time        `bson:"createdAt"`
	UpdatedAt     time.Time        `bson:"updatedAt"`
}

type ratingDocument struct {
	UserID string  `bson:"userId"`
	Grade  float64 `bson:"grade"`
}

// bookMongo はBookRepositoryインターフェースのMongoDB実装です。
type bookMongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ usecase.BookRepository = (*bookMongo)(nil)

// NewBookMongo はdatabaseのbooksコレクションを使うbookMongoを生成します。
func NewBookMongo(database *mongo.Database) *bookMongo {
	return &bookMongo{coll: database.Collection(booksCollection), now: time.Now}
}

// EnsureIndexes は一覧・ランキング用のインデックスを作成します。
func (r *bookMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "averageRating", Value: -1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("best_rating"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("create books indexes: %w", err)
	}
	return nil
}

// Create は書籍をシード評価ごと1ドキュメントとして挿入します。
func (r *bookMongo) Create(ctx context.Context, b *entity.Book) error {
	if b == nil {
		return errors.New("book is nil")
	}
	now := r.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	_, err := r.coll.InsertOne(ctx, toDocument(b))
	return err
}

// FindByID はIDで書籍を取得します。
func (r *bookMongo) FindByID(ctx context.Context, id string) (*entity.Book, error) {
	var doc bookDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, usecase.ErrBookNotFound
		}
		return nil, err
	}
	b := fromDocument(doc)
	return &b, nil
}

// List は全書籍を作成順で返します。
func (r *bookMongo) List(ctx context.Context) ([]entity.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, opts)
}

// BestRated は平均評価の降順で最大 limit 件を返します。
func (r *bookMongo) BestRated(ctx context.Context, limit int) ([]entity.Book, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "averageRating", Value: -1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, opts)
}

func (r *bookMongo) find(ctx context.Context, opts *options.FindOptionsBuilder) ([]entity.Book, error) {
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []bookDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]entity.Book, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

// Update は patch の非nilフィールドのみを $set します。
func (r *bookMongo) Update(ctx context.Context, id string, p entity.Patch) (*entity.Book, error) {
	set := bson.D{{Key: "updatedAt", Value: r.now().UTC()}}
	if p.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *p.Title})
	}
	if p.Author != nil {
		set = append(set, bson.E{Key: "author", Value: *p.Author})
	}
	if p.Year != nil {
		set = append(set, bson.E{Key: "year", Value: *p.Year})
	}
	if p.Genre != nil {
		set = append(set, bson.E{Key: "genre", Value: *p.Genre})
	}
	if p.ImageURL != nil {
		set = append(set, bson.E{Key: "imageUrl", Value: *p.ImageURL})
	}
	if p.ImageKey != nil {
		set = append(set, bson.E{Key: "imageKey", Value: *p.ImageKey})
	}
	return r.findOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
}

// Delete は書籍ドキュメントを削除します。評価は埋め込みのため同時に消えます。
func (r *bookMongo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return usecase.ErrBookNotFound
	}
	return nil
}

// AddRating は1回の findOneAndUpdate で重複チェック・追加・平均の再計算を行います。
// 一致しなかった場合は _id の件数で未存在と重複を判別します。
func (r *bookMongo) AddRating(ctx context.Context, id string, rating entity.Rating) (*entity.Book, error) {
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "ratings.userId", Value: bson.D{{Key: "$ne", Value: rating.UserID}}},
	}
	appended := bson.A{bson.D{{Key: "userId", Value: rating.UserID}, {Key: "grade", Value: rating.Grade}}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "ratings", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$ratings", bson.A{}}}},
				bson.D{{Key: "$literal", Value: appended}},
			}}}},
			{Key: "updatedAt", Value: r.now().UTC()},
		}}},
		// 0.5 は切り上げ（平均は非負）
		{{Key: "$set", Value: bson.D{
			{Key: "averageRating", Value: bson.D{{Key: "$divide", Value: bson.A{
				bson.D{{Key: "$floor", Value: bson.D{{Key: "$add", Value: bson.A{
					bson.D{{Key: "$multiply", Value: bson.A{bson.D{{Key: "$avg", Value: "$ratings.grade"}}, 100}}},
					0.5,
				}}}}},
				100,
			}}}},
		}}},
	}

	b, err := r.findOneAndUpdate(ctx, filter, pipeline)
	if !errors.Is(err, usecase.ErrBookNotFound) {
		return b, err
	}
	n, cerr := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
	if cerr != nil {
		return nil, cerr
	}
	if n == 0 {
		return nil, usecase.ErrBookNotFound
	}
	return nil, usecase.ErrDuplicateRating
}

func (r *bookMongo) findOneAndUpdate(ctx context.Context, filter bson.D, update any) (*entity.Book, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bookDocument
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, usecase.ErrBookNotFound
		}
		return nil, err
	}
	b := fromDocument(doc)
	return &b, nil
}

func toDocument(b *entity.Book) bookDocument {
	ratings := make([]ratingDocument, 0, len(b.Ratings))
	for _, r := range b.Ratings {
		ratings = append(ratings, ratingDocument{UserID: r.UserID, Grade: r.Grade})
	}
	return bookDocument{
		ID:            b.ID,
		OwnerID:       b.OwnerID,
		Title:         b.Title,
		Author:        b.Author,
		ImageURL:      b.ImageURL,
		ImageKey:      b.ImageKey,
		Year:          b.Year,
		Genre:         b.Genre,
		Ratings:       ratings,
		AverageRating: b.AverageRating,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func fromDocument(d bookDocument) entity.Book {
	ratings := make([]entity.Rating, 0, len(d.Ratings))
	for _, r := range d.Ratings {
		ratings = append(ratings, entity.Rating{UserID: r.UserID, Grade: r.Grade})
	}
	return entity.Book{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Title:         d.Title,
		Author:        d.Author,
		ImageURL:      d.ImageURL,
		ImageKey:      d.ImageKey,
		Year:          d.Year,
		Genre:         d.Genre,
		Ratings:       ratings,
		AverageRating: d.AverageRating,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
