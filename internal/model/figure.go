package model

import (
	"time"

	"github.com/google/uuid"
)

// FigureRecord представляет загруженную пользователем фигуру (изображение)
// с описаниями. Запись принадлежит хранилищу изображений; ядро генерации
// читает её и обновляет только длинное описание.
type FigureRecord struct {
	ID           uuid.UUID  `db:"id"`
	UserID       uuid.UUID  `db:"user_id"`
	Filepath     string     `db:"filepath"`      // Имя файла внутри рабочей директории пользователя
	ShortDesc    string     `db:"short_desc"`    // Короткое описание (подпись)
	LongDesc     string     `db:"long_desc"`     // Длинное описание, используется пайплайном
	InStoryboard bool       `db:"in_storyboard"` // Участвует ли фигура в storyboard
	GroupID      *uuid.UUID `db:"group_id"`      // Группа (может отсутствовать)
	CreatedAt    time.Time  `db:"created_at"`
}

// GroupRecord представляет пользовательскую группу фигур на storyboard.
type GroupRecord struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Number      int       `db:"number"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}
