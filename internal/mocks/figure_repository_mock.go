package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"cast-server/internal/model"
	"cast-server/internal/repository"
)

// MockFigureRepository is a mock type for the FigureRepository type
type MockFigureRepository struct {
	mock.Mock
}

// ListStoryboardFigures provides a mock function with given fields: ctx, userID
func (_m *MockFigureRepository) ListStoryboardFigures(ctx context.Context, userID uuid.UUID) ([]model.FigureRecord, error) {
	ret := _m.Called(ctx, userID)

	var r0 []model.FigureRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.FigureRecord)
	}

	return r0, ret.Error(1)
}

// GetByID provides a mock function with given fields: ctx, userID, figureID
func (_m *MockFigureRepository) GetByID(ctx context.Context, userID uuid.UUID, figureID uuid.UUID) (*model.FigureRecord, error) {
	ret := _m.Called(ctx, userID, figureID)

	var r0 *model.FigureRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.FigureRecord)
	}

	return r0, ret.Error(1)
}

// UpdateLongDescription provides a mock function with given fields: ctx, userID, figureID, longDesc
func (_m *MockFigureRepository) UpdateLongDescription(ctx context.Context, userID uuid.UUID, figureID uuid.UUID, longDesc string) error {
	ret := _m.Called(ctx, userID, figureID, longDesc)
	return ret.Error(0)
}

// ListGroups provides a mock function with given fields: ctx, userID
func (_m *MockFigureRepository) ListGroups(ctx context.Context, userID uuid.UUID) ([]model.GroupRecord, error) {
	ret := _m.Called(ctx, userID)

	var r0 []model.GroupRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.GroupRecord)
	}

	return r0, ret.Error(1)
}

// NewMockFigureRepository creates a new instance of MockFigureRepository. It also registers a testing interface on the mock.
func NewMockFigureRepository(t interface {
	mock.TestingT
	Helper()
}) *MockFigureRepository {
	m := &MockFigureRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ repository.FigureRepository = (*MockFigureRepository)(nil)
