package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cast-server/internal/messaging"
	"cast-server/internal/model"
	"cast-server/internal/narrative"
	"cast-server/internal/repository"
	"cast-server/internal/service"
)

// TaskHandler обрабатывает задачи из очереди генерации: нарратив, обратная
// связь по storyboard и описания фигур.
type TaskHandler struct {
	orchestrator *narrative.Orchestrator
	feedback     *narrative.FeedbackGenerator
	descriptions *narrative.DescriptionGenerator
	statusRepo   repository.TaskStatusRepository
	notifier     service.Notifier
	logger       *zap.Logger
}

// NewTaskHandler создает новый экземпляр обработчика задач.
func NewTaskHandler(
	orchestrator *narrative.Orchestrator,
	feedback *narrative.FeedbackGenerator,
	descriptions *narrative.DescriptionGenerator,
	statusRepo repository.TaskStatusRepository,
	notifier service.Notifier,
	logger *zap.Logger,
) *TaskHandler {
	return &TaskHandler{
		orchestrator: orchestrator,
		feedback:     feedback,
		descriptions: descriptions,
		statusRepo:   statusRepo,
		notifier:     notifier,
		logger:       logger.Named("TaskHandler"),
	}
}

// Handle обрабатывает одну задачу. Возвращенная ошибка означает nack
// (сообщение уедет в DLQ); успешная обработка - ack.
func (h *TaskHandler) Handle(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	taskStartTime := time.Now()
	log := h.logger.With(
		zap.String("task_id", payload.TaskID),
		zap.String("user_id", payload.UserID),
		zap.String("task_type", string(payload.TaskType)),
	)
	log.Info("Task processing started")

	defer func() {
		RecordTaskDuration(string(payload.TaskType), time.Since(taskStartTime))
	}()

	if !messaging.IsValidTaskType(payload.TaskType) {
		IncrementTaskFailed("invalid_task_type")
		return fmt.Errorf("unknown task type %q", payload.TaskType)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		IncrementTaskFailed("invalid_user_id")
		return fmt.Errorf("invalid user id %q: %w", payload.UserID, err)
	}

	h.setStatus(ctx, payload, model.TaskStateProcessing, nil, false, "")

	var (
		processingErr error
		degraded      bool
		resultRaw     json.RawMessage
	)

	switch payload.TaskType {
	case messaging.TaskTypeNarrative:
		degraded, processingErr = h.handleNarrative(ctx, payload, userID)
	case messaging.TaskTypeFeedback:
		resultRaw, processingErr = h.handleFeedback(ctx, userID)
	case messaging.TaskTypeDescription:
		resultRaw, processingErr = h.handleDescription(ctx, payload, userID)
	}

	if processingErr != nil {
		log.Error("Task processing failed", zap.Error(processingErr))
		IncrementTaskFailed(failureReason(processingErr))
		h.setStatus(ctx, payload, model.TaskStateError, nil, false, processingErr.Error())
		h.notify(ctx, payload, messaging.NotificationStatusError, processingErr.Error(), false)
		return processingErr
	}

	IncrementTaskSucceeded(string(payload.TaskType))
	h.setStatus(ctx, payload, model.TaskStateSuccess, resultRaw, degraded, "")
	h.notify(ctx, payload, messaging.NotificationStatusSuccess, "", degraded)
	log.Info("Task processing finished", zap.Bool("degraded", degraded), zap.Duration("took", time.Since(taskStartTime)))
	return nil
}

func (h *TaskHandler) handleNarrative(ctx context.Context, payload messaging.GenerationTaskPayload, userID uuid.UUID) (bool, error) {
	acquired, err := h.statusRepo.AcquireGenerationLock(ctx, userID)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, model.ErrGenerationInProgress
	}
	defer func() {
		if err := h.statusRepo.ReleaseGenerationLock(context.WithoutCancel(ctx), userID); err != nil {
			h.logger.Warn("Failed to release generation lock", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}()

	result, err := h.orchestrator.Generate(ctx, userID, payload.StoryStructureID, payload.UseGroups)
	if err != nil {
		return false, err
	}
	return result.Degraded, nil
}

func (h *TaskHandler) handleFeedback(ctx context.Context, userID uuid.UUID) (json.RawMessage, error) {
	report, err := h.feedback.Generate(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feedback report: %w", err)
	}
	return raw, nil
}

func (h *TaskHandler) handleDescription(ctx context.Context, payload messaging.GenerationTaskPayload, userID uuid.UUID) (json.RawMessage, error) {
	figureID, err := uuid.Parse(payload.FigureID)
	if err != nil {
		return nil, fmt.Errorf("invalid figure id %q: %w", payload.FigureID, err)
	}
	description, err := h.descriptions.Generate(ctx, userID, figureID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return nil, fmt.Errorf("failed to encode description result: %w", err)
	}
	return raw, nil
}

// setStatus обновляет статус задачи в Redis. Ошибка записи статуса не
// должна ронять задачу, только логируется.
func (h *TaskHandler) setStatus(ctx context.Context, payload messaging.GenerationTaskPayload, state model.TaskState, result json.RawMessage, degraded bool, errDetails string) {
	status := &model.TaskStatus{
		TaskID:   payload.TaskID,
		UserID:   payload.UserID,
		TaskType: string(payload.TaskType),
		State:    state,
		Error:    errDetails,
		Degraded: degraded,
		Result:   result,
	}
	if err := h.statusRepo.SetStatus(ctx, status); err != nil {
		h.logger.Warn("Failed to update task status",
			zap.String("task_id", payload.TaskID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

// notify публикует уведомление о завершении задачи. Ошибка публикации
// логируется, но задача считается обработанной: результат уже сохранен.
func (h *TaskHandler) notify(ctx context.Context, payload messaging.GenerationTaskPayload, status messaging.NotificationStatus, errDetails string, degraded bool) {
	notification := messaging.NotificationPayload{
		TaskID:       payload.TaskID,
		UserID:       payload.UserID,
		TaskType:     payload.TaskType,
		Status:       status,
		ErrorDetails: errDetails,
		Degraded:     degraded,
	}
	if err := h.notifier.Notify(ctx, notification); err != nil {
		h.logger.Warn("Failed to publish task notification",
			zap.String("task_id", payload.TaskID),
			zap.Error(err),
		)
	}
}

// failureReason переводит ошибку в метку метрики.
func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNoStoryboardFigures):
		return "no_storyboard_figures"
	case errors.Is(err, model.ErrGenerationInProgress):
		return "generation_in_progress"
	case errors.Is(err, model.ErrFigureNotFound):
		return "figure_not_found"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrAIGenerationFailed):
		return "ai_error"
	default:
		return "internal_error"
	}
}
