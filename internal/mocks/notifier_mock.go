package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cast-server/internal/messaging"
	"cast-server/internal/service"
)

// MockNotifier is a mock type for the Notifier type
type MockNotifier struct {
	mock.Mock
}

// Notify provides a mock function with given fields: ctx, notification
func (_m *MockNotifier) Notify(ctx context.Context, notification messaging.NotificationPayload) error {
	ret := _m.Called(ctx, notification)
	return ret.Error(0)
}

// NewMockNotifier creates a new instance of MockNotifier. It also registers a testing interface on the mock.
func NewMockNotifier(t interface {
	mock.TestingT
	Helper()
}) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.Notifier = (*MockNotifier)(nil)
