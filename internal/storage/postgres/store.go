package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store provides Postgres-backed persistence for users.
type Store struct {
	pool pool
	now  func() time.Time
}

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// connectBackoff bounds how long startup waits for the database.
var connectBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
}

// NewUserStore connects to databaseURL, retrying the initial ping with
// exponential backoff. Schema changes are applied separately by Migrator.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	err = retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	return newStore(p), nil
}

func newStore(p pool) *Store {
	return &Store{pool: p, now: time.Now}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// CreateUser inserts a new user row. Unique index violations surface as
// storage.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	now := s.now().UTC()
	row := s.pool.QueryRow(ctx, query, ulid.Make().String(), user.Username, user.Email, user.PasswordHash, now, now)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.User{}, oops.Code("USER_ALREADY_EXISTS").
				With("username", user.Username).
				With("constraint", pgErr.ConstraintName).
				Wrap(storage.ErrAlreadyExists)
		}
		return models.User{}, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return created, nil
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.findOne(ctx, "id", id, query, id)
}

// FindByUsername fetches a user by username.
func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return s.findOne(ctx, "username", username, query, username)
}

// FindByEmail fetches a user by email address (case-insensitive).
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return s.findOne(ctx, "email", email, query, email)
}

// FindByUsernameOrEmail fetches the first user matching either the username or the email.
func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	const query = `
	SELECT ` + userColumns + `
	FROM users
	WHERE username = $1 OR LOWER(email) = LOWER($2)
	LIMIT 1`
	return s.findOne(ctx, "username_or_email", username+"|"+email, query, username, email)
}

// UpdatePassword overwrites the stored hash for a user.
func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, passwordHash, s.now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(storage.ErrNotFound)
	}
	return nil
}

func (s *Store) findOne(ctx context.Context, field, value, query string, args ...any) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, oops.Code("USER_NOT_FOUND").With(field, value).Wrap(storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+field).
			With(field, value).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
