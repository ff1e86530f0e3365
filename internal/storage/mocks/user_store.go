// Package mocks holds testify mocks for storage interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hongminglow/passgate/internal/models"
	"github.com/hongminglow/passgate/internal/storage"
)

var _ storage.UserStore = (*MockUserStore)(nil)

// MockUserStore is a testify mock of storage.UserStore.
type MockUserStore struct {
	mock.Mock
}

// NewMockUserStore creates a mock whose expectations are asserted on test cleanup.
func NewMockUserStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserStore {
	m := &MockUserStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserStore) FindByID(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	args := m.Called(ctx, username, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *MockUserStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockUserStore) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
