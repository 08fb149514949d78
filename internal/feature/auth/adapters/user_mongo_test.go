package adapters

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"grimoire/internal/feature/auth/domain/entity"
	"grimoire/internal/feature/auth/usecase"
	mongoclient "grimoire/internal/platform/mongo"
)

// setupTestMongo connects to TEST_MONGODB_URI and returns a throwaway database.
// The test is skipped when no server is configured.
func setupTestMongo(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set; skipping MongoDB integration test")
	}
	client, err := mongoclient.Connect(context.Background(), uri, 5*time.Second)
	require.NoError(t, err)

	database := client.Database("grimoire_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return database
}

func TestUserMongo(t *testing.T) {
	database := setupTestMongo(t)
	repo := NewUserMongo(database)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	user := &entity.User{ID: "u-1", Email: "reader@example.com", Password: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	assert.False(t, user.CreatedAt.IsZero())

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &entity.User{ID: "u-2", Email: "reader@example.com", Password: "hash"})
		assert.ErrorIs(t, err, usecase.ErrEmailAlreadyExists)
	})

	t.Run("find by email", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "reader@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-1", found.ID)
	})

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "reader@example.com", found.Email)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, usecase.ErrUserNotFound)
	})
}
