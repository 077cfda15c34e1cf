package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cast-server/internal/service"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, userID, systemPrompt, userInput, params
func (_m *MockAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params service.GenerationParams) (string, service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, params)

	var r0 string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 service.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(service.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// GenerateVision provides a mock function with given fields: ctx, userID, systemPrompt, userInput, images, params
func (_m *MockAIClient) GenerateVision(ctx context.Context, userID string, systemPrompt string, userInput string, images []service.ImageAttachment, params service.GenerationParams) (string, service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, images, params)

	var r0 string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 service.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(service.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// GenerateStructured provides a mock function with given fields: ctx, userID, systemPrompt, userInput, schemaName, result, params
func (_m *MockAIClient) GenerateStructured(ctx context.Context, userID string, systemPrompt string, userInput string, schemaName string, result any, params service.GenerationParams) (service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, schemaName, result, params)

	var r0 service.UsageInfo
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(service.UsageInfo)
	}

	return r0, ret.Error(1)
}

// GenerateTextStream provides a mock function with given fields: ctx, userID, systemPrompt, userInput, params, chunkHandler
func (_m *MockAIClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params service.GenerationParams, chunkHandler func(string) error) (service.UsageInfo, error) {
	ret := _m.Called(ctx, userID, systemPrompt, userInput, params, chunkHandler)

	var r0 service.UsageInfo
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(service.UsageInfo)
	}

	return r0, ret.Error(1)
}

// NewMockAIClient creates a new instance of MockAIClient. It also registers a testing interface on the mock.
// The first argument is typically a *testing.T value.
func NewMockAIClient(t interface {
	mock.TestingT
	Helper()
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ service.AIClient = (*MockAIClient)(nil)
