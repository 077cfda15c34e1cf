package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"cast-server/internal/model"
	"cast-server/internal/repository"
)

// MockTaskStatusRepository is a mock type for the TaskStatusRepository type
type MockTaskStatusRepository struct {
	mock.Mock
}

// SetStatus provides a mock function with given fields: ctx, status
func (_m *MockTaskStatusRepository) SetStatus(ctx context.Context, status *model.TaskStatus) error {
	ret := _m.Called(ctx, status)
	return ret.Error(0)
}

// GetStatus provides a mock function with given fields: ctx, taskID
func (_m *MockTaskStatusRepository) GetStatus(ctx context.Context, taskID string) (*model.TaskStatus, error) {
	ret := _m.Called(ctx, taskID)

	var r0 *model.TaskStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.TaskStatus)
	}

	return r0, ret.Error(1)
}

// AcquireGenerationLock provides a mock function with given fields: ctx, userID
func (_m *MockTaskStatusRepository) AcquireGenerationLock(ctx context.Context, userID uuid.UUID) (bool, error) {
	ret := _m.Called(ctx, userID)
	return ret.Bool(0), ret.Error(1)
}

// ReleaseGenerationLock provides a mock function with given fields: ctx, userID
func (_m *MockTaskStatusRepository) ReleaseGenerationLock(ctx context.Context, userID uuid.UUID) error {
	ret := _m.Called(ctx, userID)
	return ret.Error(0)
}

// NewMockTaskStatusRepository creates a new instance of MockTaskStatusRepository. It also registers a testing interface on the mock.
func NewMockTaskStatusRepository(t interface {
	mock.TestingT
	Helper()
}) *MockTaskStatusRepository {
	m := &MockTaskStatusRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ repository.TaskStatusRepository = (*MockTaskStatusRepository)(nil)
