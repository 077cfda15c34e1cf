package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cast-server/internal/messaging"
	"cast-server/internal/model"
	"cast-server/internal/repository"
	"cast-server/internal/service"
)

// Handler обрабатывает HTTP запросы API студии: постановка фоновых задач
// генерации, чтение кеша нарратива и поллинг статусов.
type Handler struct {
	publisher messaging.TaskPublisher
	cache     repository.NarrativeCacheRepository
	statuses  repository.TaskStatusRepository
	aiClient  service.AIClient
	logger    *zap.Logger
}

// NewHandler создает новый экземпляр Handler.
func NewHandler(
	publisher messaging.TaskPublisher,
	cache repository.NarrativeCacheRepository,
	statuses repository.TaskStatusRepository,
	aiClient service.AIClient,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		publisher: publisher,
		cache:     cache,
		statuses:  statuses,
		aiClient:  aiClient,
		logger:    logger.Named("APIHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API на переданном роутере.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/narrative/generate", h.generateNarrative)
		api.GET("/narrative", h.getNarrative)
		api.POST("/narrative/clear", h.clearNarrative)
		api.POST("/feedback/generate", h.generateFeedback)
		api.POST("/figures/:id/describe", h.generateDescription)
		api.GET("/tasks/:id", h.getTaskStatus)
		api.GET("/story-structures", h.listStoryStructures)
	}
	router.POST("/generate/stream", h.generateStream)
}

// getUserIDFromHeader извлекает идентификатор пользователя из заголовка
// X-User-ID. Аутентификацию выполняет вышестоящий шлюз; здесь мы доверяем
// заголовку, но проверяем формат.
func getUserIDFromHeader(c *gin.Context, logger *zap.Logger) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		handleServiceError(c, fmt.Errorf("%w: missing X-User-ID header", model.ErrBadRequest), logger)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("Invalid X-User-ID header", zap.String("value", raw), zap.Error(err))
		handleServiceError(c, fmt.Errorf("%w: invalid X-User-ID header", model.ErrBadRequest), logger)
		return uuid.Nil, false
	}
	return userID, true
}

type generateNarrativeRequest struct {
	StoryStructureID string `json:"story_structure_id"`
	UseGroups        bool   `json:"use_groups"`
}

func (h *Handler) generateNarrative(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	var req generateNarrativeRequest
	// Тело опционально: пустой запрос означает плоский режим без шаблона
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid request body for generateNarrative", zap.Stringer("userID", userID), zap.Error(err))
			handleServiceError(c, fmt.Errorf("%w: %v", model.ErrBadRequest, err), h.logger)
			return
		}
	}

	// Проверяем шаблон до постановки задачи, чтобы клиент получил ошибку
	// сразу, а не из статуса задачи
	if req.StoryStructureID != "" {
		if _, err := model.StoryStructureByID(req.StoryStructureID); err != nil {
			handleServiceError(c, fmt.Errorf("%w: unknown story structure '%s'", model.ErrBadRequest, req.StoryStructureID), h.logger)
			return
		}
	}

	h.enqueueTask(c, userID, messaging.GenerationTaskPayload{
		TaskType:         messaging.TaskTypeNarrative,
		StoryStructureID: req.StoryStructureID,
		UseGroups:        req.UseGroups,
	})
}

func (h *Handler) generateFeedback(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}
	h.enqueueTask(c, userID, messaging.GenerationTaskPayload{
		TaskType: messaging.TaskTypeFeedback,
	})
}

func (h *Handler) generateDescription(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	idStr := c.Param("id")
	figureID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid figure ID format in generateDescription", zap.String("id", idStr), zap.Error(err))
		handleServiceError(c, fmt.Errorf("%w: invalid figure ID format", model.ErrBadRequest), h.logger)
		return
	}

	h.enqueueTask(c, userID, messaging.GenerationTaskPayload{
		TaskType: messaging.TaskTypeDescription,
		FigureID: figureID.String(),
	})
}

// enqueueTask ставит фоновую задачу: записывает pending-статус в Redis и
// публикует сообщение в очередь. Ответ - 202 Accepted с идентификатором
// задачи для поллинга.
func (h *Handler) enqueueTask(c *gin.Context, userID uuid.UUID, payload messaging.GenerationTaskPayload) {
	payload.TaskID = uuid.NewString()
	payload.UserID = userID.String()

	status := &model.TaskStatus{
		TaskID:   payload.TaskID,
		UserID:   payload.UserID,
		TaskType: string(payload.TaskType),
		State:    model.TaskStatePending,
	}
	if err := h.statuses.SetStatus(c.Request.Context(), status); err != nil {
		h.logger.Error("Failed to record pending task status",
			zap.String("task_id", payload.TaskID),
			zap.Error(err),
		)
		handleServiceError(c, err, h.logger)
		return
	}

	if err := h.publisher.PublishGenerationTask(c.Request.Context(), payload); err != nil {
		h.logger.Error("Failed to publish generation task",
			zap.String("task_id", payload.TaskID),
			zap.String("task_type", string(payload.TaskType)),
			zap.Error(err),
		)
		handleServiceError(c, err, h.logger)
		return
	}

	h.logger.Info("Task enqueued",
		zap.String("task_id", payload.TaskID),
		zap.String("user_id", payload.UserID),
		zap.String("task_type", string(payload.TaskType)),
	)
	c.JSON(http.StatusAccepted, model.TaskAcceptedResponse{
		TaskID: payload.TaskID,
		Status: string(model.TaskStatePending),
	})
}

func (h *Handler) getNarrative(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	result, err := h.cache.Get(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) clearNarrative(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	if err := h.cache.Clear(c.Request.Context(), userID); err != nil {
		h.logger.Error("Failed to clear narrative cache", zap.Stringer("userID", userID), zap.Error(err))
		handleServiceError(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getTaskStatus(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	status, err := h.statuses.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	// Статусы чужих задач не отдаем
	if status.UserID != userID.String() {
		handleServiceError(c, model.ErrNotFound, h.logger)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listStoryStructures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"structures": model.StoryStructures()})
}

// generateStreamRequest - структура для парсинга JSON из тела запроса.
type generateStreamRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt" binding:"required"`
	// Указатели, чтобы отличить 0/0.0 от отсутствия
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// generateStream обрабатывает POST /generate/stream: прямой стриминговый
// проход к AI клиенту, минуя очередь задач. Используется редактором для
// интерактивной доработки текста.
func (h *Handler) generateStream(c *gin.Context) {
	userID, ok := getUserIDFromHeader(c, h.logger)
	if !ok {
		return
	}

	var req generateStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", model.ErrBadRequest, err), h.logger)
		return
	}

	h.logger.Info("Stream generation requested",
		zap.Stringer("userID", userID),
		zap.Int("system_chars", len(req.SystemPrompt)),
		zap.Int("user_chars", len(req.UserPrompt)),
	)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	genParams := service.GenerationParams{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	_, err := h.aiClient.GenerateTextStream(c.Request.Context(), userID.String(), req.SystemPrompt, req.UserPrompt, genParams, func(chunk string) error {
		if _, writeErr := c.Writer.WriteString(chunk); writeErr != nil {
			return writeErr
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		// Заголовки уже ушли клиенту, HTTP-ошибку отправить нельзя
		h.logger.Error("Streaming failed mid-response", zap.Stringer("userID", userID), zap.Error(err))
		return
	}
	h.logger.Debug("Streaming completed", zap.Stringer("userID", userID))
}
