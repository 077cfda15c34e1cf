package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cast-server/internal/model"
)

// handleServiceError переводит ошибки сервисного слоя в HTTP-ответы.
func handleServiceError(c *gin.Context, err error, logger *zap.Logger) {
	var statusCode int
	var errResp model.ErrorResponse

	switch {
	case errors.Is(err, model.ErrBadRequest):
		statusCode = http.StatusBadRequest
		errResp = model.ErrorResponse{Error: err.Error()}
	case errors.Is(err, model.ErrGenerationInProgress):
		statusCode = http.StatusConflict
		errResp = model.ErrorResponse{Error: "Generation is already in progress for this user"}
	case errors.Is(err, model.ErrNoStoryboardFigures):
		statusCode = http.StatusUnprocessableEntity
		errResp = model.ErrorResponse{Error: "No storyboard figures with descriptions found"}
	case errors.Is(err, model.ErrFigureNotFound):
		statusCode = http.StatusNotFound
		errResp = model.ErrorResponse{Error: "Figure not found"}
	case errors.Is(err, model.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResp = model.ErrorResponse{Error: "User not found"}
	case errors.Is(err, model.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = model.ErrorResponse{Error: "Resource not found"}
	default:
		logger.Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = model.ErrorResponse{Error: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
