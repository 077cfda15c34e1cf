package repository

import (
	"context"

	"github.com/google/uuid"

	"cast-server/internal/model"
)

// FigureRepository определяет методы чтения фигур и групп пользователя.
// Записи создаёт сервис загрузки изображений; здесь мы их читаем и
// обновляем только длинное описание.
type FigureRepository interface {
	// ListStoryboardFigures возвращает фигуры пользователя, включённые в
	// storyboard и имеющие непустое длинное описание.
	ListStoryboardFigures(ctx context.Context, userID uuid.UUID) ([]model.FigureRecord, error)
	// GetByID возвращает фигуру пользователя или model.ErrFigureNotFound.
	GetByID(ctx context.Context, userID, figureID uuid.UUID) (*model.FigureRecord, error)
	// UpdateLongDescription перезаписывает длинное описание фигуры.
	UpdateLongDescription(ctx context.Context, userID, figureID uuid.UUID, longDesc string) error
	// ListGroups возвращает группы пользователя в порядке номера.
	ListGroups(ctx context.Context, userID uuid.UUID) ([]model.GroupRecord, error)
}

// NarrativeCacheRepository хранит ровно один результат генерации на
// пользователя. Upsert полностью перезаписывает предыдущую запись.
type NarrativeCacheRepository interface {
	// Get возвращает model.ErrNotFound, если для пользователя нет записи.
	Get(ctx context.Context, userID uuid.UUID) (*model.NarrativeResult, error)
	Upsert(ctx context.Context, result *model.NarrativeResult) error
	// Clear идемпотентен: отсутствие записи не является ошибкой.
	Clear(ctx context.Context, userID uuid.UUID) error
}

// TaskStatusRepository хранит статусы фоновых задач и блокировки генерации.
type TaskStatusRepository interface {
	SetStatus(ctx context.Context, status *model.TaskStatus) error
	// GetStatus возвращает model.ErrNotFound для неизвестного task ID.
	GetStatus(ctx context.Context, taskID string) (*model.TaskStatus, error)
	// AcquireGenerationLock возвращает false, если генерация для
	// пользователя уже идёт.
	AcquireGenerationLock(ctx context.Context, userID uuid.UUID) (bool, error)
	ReleaseGenerationLock(ctx context.Context, userID uuid.UUID) error
}
