package model

import (
	"encoding/json"
	"time"
)

// TaskState - состояние фоновой задачи для поллинга клиентом.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateSuccess    TaskState = "success"
	TaskStateError      TaskState = "error"
)

// TaskStatus хранится в Redis с TTL и отдаётся по GET /tasks/:id.
type TaskStatus struct {
	TaskID   string    `json:"task_id"`
	UserID   string    `json:"user_id"`
	TaskType string    `json:"task_type"`
	State    TaskState `json:"state"`
	Error    string    `json:"error,omitempty"`
	Degraded bool      `json:"degraded,omitempty"`
	// Result - сериализованный результат задачи (отчет обратной связи,
	// сгенерированное описание). Нарратив поллится через кеш, не отсюда.
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
