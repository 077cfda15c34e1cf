package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cast-server/internal/model"
)

// Compile-time check
var _ TaskStatusRepository = (*redisTaskStatusRepository)(nil)

type redisTaskStatusRepository struct {
	client    *redis.Client
	logger    *zap.Logger
	statusTTL time.Duration
	lockTTL   time.Duration
}

// NewRedisTaskStatusRepository создает Redis-репозиторий статусов задач.
// statusTTL ограничивает время жизни статуса, lockTTL страхует блокировку
// генерации от зависшего воркера.
func NewRedisTaskStatusRepository(client *redis.Client, logger *zap.Logger, statusTTL, lockTTL time.Duration) TaskStatusRepository {
	return &redisTaskStatusRepository{
		client:    client,
		logger:    logger.Named("RedisTaskStatusRepo"),
		statusTTL: statusTTL,
		lockTTL:   lockTTL,
	}
}

func taskStatusKey(taskID string) string {
	return fmt.Sprintf("narrative_task:%s", taskID)
}

func generationLockKey(userID uuid.UUID) string {
	return fmt.Sprintf("narrative_lock:%s", userID.String())
}

func (r *redisTaskStatusRepository) SetStatus(ctx context.Context, status *model.TaskStatus) error {
	status.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode task status %s: %w", status.TaskID, err)
	}

	key := taskStatusKey(status.TaskID)
	if err := r.client.Set(ctx, key, payload, r.statusTTL).Err(); err != nil {
		r.logger.Error("Failed to set task status in redis", zap.String("task_id", status.TaskID), zap.Error(err))
		return fmt.Errorf("failed to set task status %s in redis: %w", status.TaskID, err)
	}

	r.logger.Debug("Task status updated",
		zap.String("task_id", status.TaskID),
		zap.String("state", string(status.State)),
	)
	return nil
}

func (r *redisTaskStatusRepository) GetStatus(ctx context.Context, taskID string) (*model.TaskStatus, error) {
	raw, err := r.client.Get(ctx, taskStatusKey(taskID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get task status from redis", zap.String("task_id", taskID), zap.Error(err))
		return nil, fmt.Errorf("failed to get task status %s from redis: %w", taskID, err)
	}

	var status model.TaskStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		// Данные в Redis повреждены
		r.logger.Error("Failed to decode task status from redis data",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("corrupted task status data in redis for task %s: %w", taskID, err)
	}
	return &status, nil
}

func (r *redisTaskStatusRepository) AcquireGenerationLock(ctx context.Context, userID uuid.UUID) (bool, error) {
	acquired, err := r.client.SetNX(ctx, generationLockKey(userID), "1", r.lockTTL).Result()
	if err != nil {
		r.logger.Error("Failed to acquire generation lock", zap.String("user_id", userID.String()), zap.Error(err))
		return false, fmt.Errorf("failed to acquire generation lock for user %s: %w", userID, err)
	}
	if !acquired {
		r.logger.Warn("Generation already in progress for user", zap.String("user_id", userID.String()))
	}
	return acquired, nil
}

func (r *redisTaskStatusRepository) ReleaseGenerationLock(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Del(ctx, generationLockKey(userID)).Err(); err != nil {
		r.logger.Error("Failed to release generation lock", zap.String("user_id", userID.String()), zap.Error(err))
		return fmt.Errorf("failed to release generation lock for user %s: %w", userID, err)
	}
	return nil
}
