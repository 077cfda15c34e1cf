package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskPublisher публикует задачи генерации в очередь воркера.
type TaskPublisher interface {
	PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error
}

// rabbitMQPublisher implements TaskPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQTaskPublisher создает паблишера задач генерации.
// Паблишер объявляет очередь сам, чтобы не зависеть от порядка запуска
// сервисов. Параметры очереди (lazy, DLX) должны совпадать с консьюмером.
func NewRabbitMQTaskPublisher(conn *amqp.Connection) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
	}
	_, err = ch.QueueDeclare(
		TaskQueueName, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		args,
	)
	if err != nil {
		log.Printf("TaskPublisher ERROR: Не удалось объявить очередь '%s': %v", TaskQueueName, err)
		ch.Close()
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", TaskQueueName, err)
	}
	log.Printf("TaskPublisher: Очередь '%s' успешно объявлена/найдена.", TaskQueueName)
	return &rabbitMQPublisher{channel: ch, queueName: TaskQueueName}, nil
}

// PublishGenerationTask publishes a generation task.
func (p *rabbitMQPublisher) PublishGenerationTask(ctx context.Context, payload GenerationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка сериализации GenerationTaskPayload: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка сериализации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body, payload.TaskID); err != nil {
		log.Printf("[TaskID: %s][UserID: %s] Ошибка публикации GenerationTask: %v", payload.TaskID, payload.UserID, err)
		return fmt.Errorf("ошибка публикации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// publishMessage is a helper method for publishing a message.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte, taskID string) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				MessageId:    taskID,
				AppId:        "narrative-api",
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	return nil
}
