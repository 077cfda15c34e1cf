package messaging

// Имена очередей и обменников RabbitMQ, разделяемые издателем (API) и
// воркером. Очередь задач durable+lazy, с DLX для отравленных сообщений.
const (
	TaskQueueName          = "narrative_generation_tasks"
	DeadLetterExchange     = "narrative_tasks_dlx"
	DeadLetterQueue        = TaskQueueName + "_dlq"
	DeadLetterRoutingKey   = "dlq"
	NotificationsQueueName = "narrative_task_updates"
)

// TaskType определяет вид фоновой задачи.
type TaskType string

const (
	TaskTypeNarrative   TaskType = "narrative"
	TaskTypeFeedback    TaskType = "feedback"
	TaskTypeDescription TaskType = "description"
)

// IsValidTaskType проверяет тип задачи из входящего сообщения.
func IsValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeNarrative, TaskTypeFeedback, TaskTypeDescription:
		return true
	default:
		return false
	}
}

// GenerationTaskPayload - тело сообщения в очереди задач.
type GenerationTaskPayload struct {
	TaskID           string   `json:"taskId"`
	UserID           string   `json:"userId"`
	TaskType         TaskType `json:"taskType"`
	StoryStructureID string   `json:"storyStructureId,omitempty"` // только narrative
	UseGroups        bool     `json:"useGroups,omitempty"`        // только narrative
	FigureID         string   `json:"figureId,omitempty"`         // только description
}

// NotificationStatus - итоговый статус задачи в уведомлении.
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusError   NotificationStatus = "error"
)

// NotificationPayload публикуется воркером после завершения задачи.
type NotificationPayload struct {
	TaskID       string             `json:"task_id"`
	UserID       string             `json:"user_id"`
	TaskType     TaskType           `json:"task_type"`
	Status       NotificationStatus `json:"status"`
	ErrorDetails string             `json:"error_details,omitempty"`
	Degraded     bool               `json:"degraded,omitempty"`
}
