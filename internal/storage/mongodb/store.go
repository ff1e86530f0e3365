// Package mongodb stores users as documents in a MongoDB collection.
package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

const collectionName = "users"

// userDocument is the stored shape. email_lower backs the case-insensitive
// unique index.
type userDocument struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Username   string        `bson:"username"`
	Email      string        `bson:"email"`
	EmailLower string        `bson:"email_lower"`
	Password   string        `bson:"password"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

func (d userDocument) toModel() models.User {
	return models.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Store is a MongoDB-backed storage.UserStore.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	now    func() time.Time
}

// NewUserStore connects to uri, waits for the server to answer a ping and
// makes sure the unique indexes exist.
func NewUserStore(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "connect").Wrap(err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	s := &Store{
		client: client,
		users:  client.Database(database).Collection(collectionName),
		now:    time.Now,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique username and email indexes. They are the
// authoritative guard against duplicate registrations.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_username_unique"),
		},
		{
			Keys:    bson.D{{Key: "email_lower", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
	})
	if err != nil {
		return oops.Code("STORE_INDEX_FAILED").With("collection", collectionName).Wrap(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return oops.Code("STORE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	doc := userDocument{
		Username:   user.Username,
		Email:      user.Email,
		EmailLower: lower(user.Email),
		Password:   user.PasswordHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, oops.Code("USER_ALREADY_EXISTS").
				With("username", user.Username).
				Wrap(storage.ErrAlreadyExists)
		}
		return models.User{}, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}

	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return models.User{}, oops.Code("USER_CREATE_FAILED").
			With("inserted_id", res.InsertedID).
			Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = id
	return doc.toModel(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		// Ids that are not ObjectIDs cannot match any document.
		return models.User{}, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(storage.ErrNotFound)
	}
	return s.findOne(ctx, bson.M{"_id": oid}, "id", id)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, bson.M{"username": username}, "username", username)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email_lower": lower(email)}, "email", email)
}

func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"email_lower": lower(email)},
	}}
	return s.findOne(ctx, filter, "username_or_email", username+"|"+email)
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(storage.ErrNotFound)
	}

	update := bson.M{"$set": bson.M{
		"password":   passwordHash,
		"updated_at": s.now().UTC().Truncate(time.Millisecond),
	}}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(storage.ErrNotFound)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M, field, value string) (models.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, oops.Code("USER_NOT_FOUND").With(field, value).Wrap(storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+field).
			With(field, value).
			Wrap(err)
	}
	return doc.toModel(), nil
}

func lower(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
