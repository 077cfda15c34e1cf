package worker_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cast-server/internal/messaging"
	"cast-server/internal/mocks"
	"cast-server/internal/model"
	"cast-server/internal/narrative"
	"cast-server/internal/service"
	"cast-server/internal/worker"
)

type handlerEnv struct {
	ai       *mocks.MockAIClient
	figures  *mocks.MockFigureRepository
	cache    *mocks.MockNarrativeCacheRepository
	statuses *mocks.MockTaskStatusRepository
	notifier *mocks.MockNotifier
	handler  *worker.TaskHandler
}

// newHandlerEnv собирает обработчик задач на моках.
func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	dir := t.TempDir()
	names := []string{
		"categorize_figures", "categorize_figures_batch",
		"understand_theme_objective", "sequence_figures",
		"sequence_figures_with_groups", "build_story",
		"build_story_with_groups", "story_definition",
		"feedback", "generate_description",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".txt"), []byte("Prompt: "+name), 0o644))
	}
	prompts, err := service.NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)

	env := &handlerEnv{
		ai:       mocks.NewMockAIClient(t),
		figures:  mocks.NewMockFigureRepository(t),
		cache:    mocks.NewMockNarrativeCacheRepository(t),
		statuses: mocks.NewMockTaskStatusRepository(t),
		notifier: mocks.NewMockNotifier(t),
	}
	orchestrator := narrative.NewOrchestrator(env.ai, prompts, env.figures, env.cache, zap.NewNop(), 0.1)
	feedback := narrative.NewFeedbackGenerator(env.ai, prompts, env.figures, zap.NewNop(), t.TempDir(), 6)
	descriptions := narrative.NewDescriptionGenerator(env.ai, prompts, env.figures, zap.NewNop(), t.TempDir())
	env.handler = worker.NewTaskHandler(orchestrator, feedback, descriptions, env.statuses, env.notifier, zap.NewNop())
	return env
}

func TestTaskHandler_Handle_UnknownTaskType(t *testing.T) {
	env := newHandlerEnv(t)

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   uuid.NewString(),
		TaskType: "bogus",
	})

	assert.Error(t, err)
	env.statuses.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything)
}

func TestTaskHandler_Handle_InvalidUserID(t *testing.T) {
	env := newHandlerEnv(t)

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   "not-a-uuid",
		TaskType: messaging.TaskTypeFeedback,
	})

	assert.Error(t, err)
}

func TestTaskHandler_Handle_FeedbackSuccess(t *testing.T) {
	env := newHandlerEnv(t)
	userID := uuid.New()

	// Пустой storyboard: фиксированный пункт без обращений к модели
	env.figures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{}, nil).Once()

	var states []model.TaskState
	var resultRaw json.RawMessage
	env.statuses.On("SetStatus", mock.Anything, mock.AnythingOfType("*model.TaskStatus")).
		Return(nil).Run(func(args mock.Arguments) {
		status := args.Get(1).(*model.TaskStatus)
		states = append(states, status.State)
		if status.State == model.TaskStateSuccess {
			resultRaw = status.Result
		}
	})
	env.notifier.On("Notify", mock.Anything, mock.AnythingOfType("messaging.NotificationPayload")).
		Return(nil).Once().Run(func(args mock.Arguments) {
		n := args.Get(1).(messaging.NotificationPayload)
		assert.Equal(t, messaging.NotificationStatusSuccess, n.Status)
		assert.Equal(t, messaging.TaskTypeFeedback, n.TaskType)
	})

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   userID.String(),
		TaskType: messaging.TaskTypeFeedback,
	})

	require.NoError(t, err)
	assert.Equal(t, []model.TaskState{model.TaskStateProcessing, model.TaskStateSuccess}, states)

	var report model.FeedbackReport
	require.NoError(t, json.Unmarshal(resultRaw, &report))
	require.Len(t, report.Items, 1)
	assert.Equal(t, model.FeedbackSectionMissingItems, report.Items[0].Section)
}

func TestTaskHandler_Handle_NarrativeLockHeld(t *testing.T) {
	env := newHandlerEnv(t)
	userID := uuid.New()

	env.statuses.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	env.statuses.On("AcquireGenerationLock", mock.Anything, userID).Return(false, nil).Once()
	env.notifier.On("Notify", mock.Anything, mock.AnythingOfType("messaging.NotificationPayload")).
		Return(nil).Once().Run(func(args mock.Arguments) {
		n := args.Get(1).(messaging.NotificationPayload)
		assert.Equal(t, messaging.NotificationStatusError, n.Status)
		assert.NotEmpty(t, n.ErrorDetails)
	})

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   userID.String(),
		TaskType: messaging.TaskTypeNarrative,
	})

	assert.ErrorIs(t, err, model.ErrGenerationInProgress)
	// Без блокировки генерация не стартует
	env.figures.AssertNotCalled(t, "ListStoryboardFigures", mock.Anything, mock.Anything)
	env.statuses.AssertNotCalled(t, "ReleaseGenerationLock", mock.Anything, mock.Anything)
}

func TestTaskHandler_Handle_NarrativeReleasesLock(t *testing.T) {
	env := newHandlerEnv(t)
	userID := uuid.New()

	env.statuses.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	env.statuses.On("AcquireGenerationLock", mock.Anything, userID).Return(true, nil).Once()
	env.statuses.On("ReleaseGenerationLock", mock.Anything, userID).Return(nil).Once()
	env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	// Генерация падает на пустом storyboard, но блокировка все равно снимается
	env.figures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{}, nil).Once()

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   userID.String(),
		TaskType: messaging.TaskTypeNarrative,
	})

	assert.ErrorIs(t, err, model.ErrNoStoryboardFigures)
	env.statuses.AssertExpectations(t)
}

func TestTaskHandler_Handle_DescriptionInvalidFigureID(t *testing.T) {
	env := newHandlerEnv(t)
	userID := uuid.New()

	env.statuses.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	err := env.handler.Handle(context.Background(), messaging.GenerationTaskPayload{
		TaskID:   "task-1",
		UserID:   userID.String(),
		TaskType: messaging.TaskTypeDescription,
		FigureID: "not-a-uuid",
	})

	assert.Error(t, err)
	env.figures.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}
