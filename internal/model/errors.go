package model

import "errors"

// Стандартные ошибки приложения
var (
	// Общие ошибки ресурсов/БД
	ErrNotFound     = errors.New("resource not found")
	ErrUserNotFound = errors.New("user not found")

	// Ошибки генерации нарратива
	ErrNoStoryboardFigures  = errors.New("no storyboard figures with descriptions found")
	ErrGenerationInProgress = errors.New("generation is already in progress for this user")
	ErrFigureNotFound       = errors.New("figure not found")

	// Ошибки конфигурации (должны останавливать запуск, а не маскироваться)
	ErrPromptsDirMissing = errors.New("prompts directory does not exist")

	// Общие ошибки запросов
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)
