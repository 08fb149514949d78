package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"grimoire/internal/feature/books/domain/entity"
)

// mockBookRepository はテスト用のBookRepositoryモック実装です。
type mockBookRepository struct {
	bestRatedFn func(ctx context.Context, limit int) ([]entity.Book, error)
	createFn    func(ctx context.Context, b *entity.Book) error
	addRatingFn func(ctx context.Context, id string, r entity.Rating) (*entity.Book, error)
	calls       map[string]int
}

func (m *mockBookRepository) record(name string) {
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[name]++
}

func (m *mockBookRepository) Create(ctx context.Context, b *entity.Book) error {
	m.record("Create")
	if m.createFn != nil {
		return m.createFn(ctx, b)
	}
	return nil
}

func (m *mockBookRepository) FindByID(ctx context.Context, id string) (*entity.Book, error) {
	m.record("FindByID")
	return &entity.Book{ID: id}, nil
}

func (m *mockBookRepository) List(ctx context.Context) ([]entity.Book, error) {
	m.record("List")
	return nil, nil
}

func (m *mockBookRepository) BestRated(ctx context.Context, limit int) ([]entity.Book, error) {
	m.record("BestRated")
	if m.bestRatedFn != nil {
		return m.bestRatedFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockBookRepository) Update(ctx context.Context, id string, p entity.Patch) (*entity.Book, error) {
	m.record("Update")
	return &entity.Book{ID: id}, nil
}

func (m *mockBookRepository) Delete(ctx context.Context, id string) error {
	m.record("Delete")
	return nil
}

func (m *mockBookRepository) AddRating(ctx context.Context, id string, r entity.Rating) (*entity.Book, error) {
	m.record("AddRating")
	if m.addRatingFn != nil {
		return m.addRatingFn(ctx, id, r)
	}
	return &entity.Book{ID: id}, nil
}

var leaderboard = []entity.Book{
	{ID: "b1", Title: "Dune", AverageRating: 4.5, Ratings: []entity.Rating{{UserID: "u1", Grade: 4.5}}},
}

// TestNewCachingBookRepository_Defaults はデフォルト値（TTLとnamespace）が正しく設定されることを検証します。
func TestNewCachingBookRepository_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		ttl               time.Duration
		namespace         string
		expectedTTL       time.Duration
		expectedNamespace string
	}{
		{"default values when zero/empty", 0, "", 5 * time.Minute, "books"},
		{"negative ttl uses default", -time.Minute, "", 5 * time.Minute, "books"},
		{"custom values preserved", 10 * time.Minute, "custom", 10 * time.Minute, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := NewCachingBookRepository(nil, tt.ttl, &mockBookRepository{}, tt.namespace)

			if repo.ttl != tt.expectedTTL {
				t.Errorf("expected TTL %v, got %v", tt.expectedTTL, repo.ttl)
			}
			if repo.namespace != tt.expectedNamespace {
				t.Errorf("expected namespace %q, got %q", tt.expectedNamespace, repo.namespace)
			}
		})
	}
}

// TestCachingBookRepository_BestRated_NilRedis はRedisがnilの場合にキャッシュをバイパスすることを検証します。
func TestCachingBookRepository_BestRated_NilRedis(t *testing.T) {
	t.Parallel()

	inner := &mockBookRepository{bestRatedFn: func(ctx context.Context, limit int) ([]entity.Book, error) {
		return leaderboard, nil
	}}
	repo := NewCachingBookRepository(nil, 5*time.Minute, inner, "books")

	books, err := repo.BestRated(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 1 || inner.calls["BestRated"] != 1 {
		t.Errorf("expected pass-through, got %d books and %d calls", len(books), inner.calls["BestRated"])
	}
	if err := repo.Create(context.Background(), &entity.Book{ID: "b2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestCachingBookRepository_BestRated_CacheHit はキャッシュヒット時に内部リポジトリを呼ばないことを検証します。
func TestCachingBookRepository_BestRated_CacheHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	cached, _ := json.Marshal(leaderboard)
	mock.ExpectGet("books:bestrating:10").SetVal(string(cached))

	inner := &mockBookRepository{}
	repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

	books, err := repo.BestRated(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls["BestRated"] != 0 {
		t.Error("inner repository should not be called on cache hit")
	}
	if len(books) != 1 || books[0].AverageRating != 4.5 || books[0].Ratings[0].UserID != "u1" {
		t.Errorf("unexpected cached books: %+v", books)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingBookRepository_BestRated_CacheMiss はキャッシュミス時にストアから取得しキャッシュへ保存することを検証します。
func TestCachingBookRepository_BestRated_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expected, _ := json.Marshal(leaderboard)
	mock.ExpectGet("books:bestrating:10").RedisNil()
	mock.ExpectSet("books:bestrating:10", expected, 5*time.Minute).SetVal("OK")

	inner := &mockBookRepository{bestRatedFn: func(ctx context.Context, limit int) ([]entity.Book, error) {
		return leaderboard, nil
	}}
	repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

	books, err := repo.BestRated(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(books) != 1 {
		t.Errorf("expected 1 book, got %d", len(books))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingBookRepository_BestRated_InnerError はストアのエラーが伝播し、キャッシュされないことを検証します。
func TestCachingBookRepository_BestRated_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("database error")
	mock.ExpectGet("books:bestrating:10").RedisNil()

	inner := &mockBookRepository{bestRatedFn: func(ctx context.Context, limit int) ([]entity.Book, error) {
		return nil, expectedErr
	}}
	repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

	_, err := repo.BestRated(context.Background(), 10)
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingBookRepository_BestRated_CorruptedCache は破損したキャッシュを削除してストアへフォールバックすることを検証します。
func TestCachingBookRepository_BestRated_CorruptedCache(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expected, _ := json.Marshal(leaderboard)
	mock.ExpectGet("books:bestrating:3").SetVal("invalid json")
	mock.ExpectDel("books:bestrating:3").SetVal(1)
	mock.ExpectSet("books:bestrating:3", expected, 5*time.Minute).SetVal("OK")

	inner := &mockBookRepository{bestRatedFn: func(ctx context.Context, limit int) ([]entity.Book, error) {
		return leaderboard, nil
	}}
	repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

	if _, err := repo.BestRated(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingBookRepository_MutationsInvalidate は各更新操作の後に名前空間全体が無効化されることを検証します。
func TestCachingBookRepository_MutationsInvalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	title := "New"
	mutations := map[string]func(r *CachingBookRepository) error{
		"Create": func(r *CachingBookRepository) error { return r.Create(ctx, &entity.Book{ID: "b2"}) },
		"Update": func(r *CachingBookRepository) error {
			_, err := r.Update(ctx, "b1", entity.Patch{Title: &title})
			return err
		},
		"Delete": func(r *CachingBookRepository) error { return r.Delete(ctx, "b1") },
		"AddRating": func(r *CachingBookRepository) error {
			_, err := r.AddRating(ctx, "b1", entity.Rating{UserID: "u2", Grade: 3})
			return err
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rdb, mock := redismock.NewClientMock()
			defer func() { _ = rdb.Close() }()

			mock.ExpectScan(0, "books:*", 200).SetVal([]string{"books:bestrating:10", "books:bestrating:3"}, 0)
			mock.ExpectDel("books:bestrating:10", "books:bestrating:3").SetVal(2)

			inner := &mockBookRepository{}
			repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

			if err := mutate(repo); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if inner.calls[name] != 1 {
				t.Errorf("expected inner %s to be called once, got %d", name, inner.calls[name])
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled mock expectations: %v", err)
			}
		})
	}
}

// TestCachingBookRepository_FailedMutationKeepsCache はストアが失敗した場合にキャッシュへ触れないことを検証します。
func TestCachingBookRepository_FailedMutationKeepsCache(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("duplicate")
	inner := &mockBookRepository{addRatingFn: func(ctx context.Context, id string, r entity.Rating) (*entity.Book, error) {
		return nil, expectedErr
	}}
	repo := NewCachingBookRepository(rdb, 5*time.Minute, inner, "books")

	_, err := repo.AddRating(context.Background(), "b1", entity.Rating{UserID: "u1", Grade: 2})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected redis calls: %v", err)
	}
}

// TestCachingBookRepository_InvalidationFailureIsIgnored はキャッシュ無効化の失敗が更新結果に影響しないことを検証します。
func TestCachingBookRepository_InvalidationFailureIsIgnored(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectScan(0, "books:*", 200).SetErr(errors.New("redis down"))

	repo := NewCachingBookRepository(rdb, 5*time.Minute, &mockBookRepository{}, "books")
	if err := repo.Delete(context.Background(), "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}
