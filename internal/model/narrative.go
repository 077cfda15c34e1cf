package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCategory присваивается фигуре, если ответ модели не удалось разобрать.
const DefaultCategory = "Uncategorized"

// CategorizedFigure - промежуточное представление фигуры внутри одного запуска
// пайплайна. Живёт от этапа категоризации до сборки результата.
type CategorizedFigure struct {
	Filepath    string
	Description string
	Category    string
}

// FigureCategory - пара "файл/категория", попадающая в итоговый результат.
type FigureCategory struct {
	Filename string `json:"filename"`
	Category string `json:"category"`
}

// NarrativeResult - результат одного запуска генерации нарратива.
// На пользователя хранится ровно одна запись; повторная генерация полностью
// перезаписывает предыдущую.
type NarrativeResult struct {
	UserID                uuid.UUID        `db:"user_id" json:"-"`
	Narrative             string           `db:"narrative" json:"narrative"`
	RecommendedOrder      []string         `db:"recommended_order" json:"recommended_order"`
	Theme                 string           `db:"theme" json:"theme"`
	Categories            []FigureCategory `db:"categories" json:"categories"`
	SequenceJustification string           `db:"sequence_justification" json:"sequence_justification"`
	// Degraded выставляется, если хотя бы один этап вернул текст ошибки
	// вместо настоящего ответа модели. Результат при этом всё равно
	// сохраняется (fail-soft), но UI может предупредить пользователя.
	Degraded  bool      `db:"degraded" json:"degraded"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
