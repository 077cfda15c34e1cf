package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"cast-server/internal/model"
	"cast-server/internal/repository"
)

// MockNarrativeCacheRepository is a mock type for the NarrativeCacheRepository type
type MockNarrativeCacheRepository struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, userID
func (_m *MockNarrativeCacheRepository) Get(ctx context.Context, userID uuid.UUID) (*model.NarrativeResult, error) {
	ret := _m.Called(ctx, userID)

	var r0 *model.NarrativeResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.NarrativeResult)
	}

	return r0, ret.Error(1)
}

// Upsert provides a mock function with given fields: ctx, result
func (_m *MockNarrativeCacheRepository) Upsert(ctx context.Context, result *model.NarrativeResult) error {
	ret := _m.Called(ctx, result)
	return ret.Error(0)
}

// Clear provides a mock function with given fields: ctx, userID
func (_m *MockNarrativeCacheRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	ret := _m.Called(ctx, userID)
	return ret.Error(0)
}

// NewMockNarrativeCacheRepository creates a new instance of MockNarrativeCacheRepository. It also registers a testing interface on the mock.
func NewMockNarrativeCacheRepository(t interface {
	mock.TestingT
	Helper()
}) *MockNarrativeCacheRepository {
	m := &MockNarrativeCacheRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ repository.NarrativeCacheRepository = (*MockNarrativeCacheRepository)(nil)
