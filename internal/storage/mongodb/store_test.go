package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

func TestUserDocument_ToModel(t *testing.T) {
	id := bson.NewObjectID()
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	doc := userDocument{
		ID:         id,
		Username:   "alice",
		Email:      "Alice@example.com",
		EmailLower: "alice@example.com",
		Password:   "hash",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	got := doc.toModel()
	assert.Equal(t, id.Hex(), got.ID)
	assert.Equal(t, "Alice@example.com", got.Email)
	assert.Equal(t, "hash", got.PasswordHash)
}

func TestLower(t *testing.T) {
	assert.Equal(t, "bob@example.com", lower("  Bob@Example.COM "))
}

// TestStoreIntegration runs against a live MongoDB.
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_MONGO_INTEGRATION") != "true" {
		t.Skip("set RUN_MONGO_INTEGRATION=true and MONGO_URI to run this integration test")
	}
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Fatal("MONGO_URI is required")
	}

	ctx := context.Background()
	db := fmt.Sprintf("passgate_test_%d", time.Now().UnixNano())
	s, err := NewUserStore(ctx, uri, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(db).Drop(ctx)
		_ = s.Close(ctx)
	})

	created, err := s.CreateUser(ctx, models.User{Username: "alice", Email: "Alice@example.com", PasswordHash: "h1"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, models.User{Username: "alice", Email: "other@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	_, err = s.CreateUser(ctx, models.User{Username: "alice2", Email: "ALICE@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	byEmail, err := s.FindByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	require.NoError(t, s.UpdatePassword(ctx, created.ID, "h2"))
	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", byID.PasswordHash)

	_, err = s.FindByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindByUsernameOrEmail(ctx, "nobody", "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
