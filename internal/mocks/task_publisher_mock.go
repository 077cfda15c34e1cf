package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cast-server/internal/messaging"
)

// MockTaskPublisher is a mock type for the TaskPublisher type
type MockTaskPublisher struct {
	mock.Mock
}

// PublishGenerationTask provides a mock function with given fields: ctx, payload
func (_m *MockTaskPublisher) PublishGenerationTask(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

// NewMockTaskPublisher creates a new instance of MockTaskPublisher. It also registers a testing interface on the mock.
func NewMockTaskPublisher(t interface {
	mock.TestingT
	Helper()
}) *MockTaskPublisher {
	m := &MockTaskPublisher{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ messaging.TaskPublisher = (*MockTaskPublisher)(nil)
