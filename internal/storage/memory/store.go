// Package memory provides a process-local UserStore used for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

// Store keeps users in maps guarded by a mutex. Uniqueness of username and
// email is checked and applied under the same lock, so concurrent inserts
// cannot both succeed.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byName  map[string]string
	byEmail map[string]string
	now     func() time.Time
}

// NewUserStore returns an empty Store.
func NewUserStore() *Store {
	return &Store{
		byID:    make(map[string]*models.User),
		byName:  make(map[string]string),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[user.Username]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	if _, ok := s.byEmail[key(user.Email)]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}

	now := s.now().UTC()
	user.ID = ulid.Make().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := user
	s.byID[user.ID] = &stored
	s.byName[user.Username] = user.ID
	s.byEmail[key(user.Email)] = user.ID
	return user, nil
}

func (s *Store) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

func (s *Store) FindByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byName[username])
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[key(email)])
}

func (s *Store) FindByUsernameOrEmail(_ context.Context, username, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byName[username]; ok {
		return s.lookup(id)
	}
	return s.lookup(s.byEmail[key(email)])
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) lookup(id string) (models.User, error) {
	if id == "" {
		return models.User{}, storage.ErrNotFound
	}
	user, ok := s.byID[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return *user, nil
}

// Emails compare case-insensitively, as in the other stores.
func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
