package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/passgate/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// UserStore captures persistence operations needed by the account flows.
// Implementations must enforce username and email uniqueness themselves and
// report violations as ErrAlreadyExists.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// FindByUsernameOrEmail returns the first user whose username or email matches.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
