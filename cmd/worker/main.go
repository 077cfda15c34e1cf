package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cast-server/internal/api"
	"cast-server/internal/config"
	"cast-server/internal/logger"
	"cast-server/internal/messaging"
	"cast-server/internal/middleware"
	"cast-server/internal/narrative"
	"cast-server/internal/repository"
	"cast-server/internal/service"
	"cast-server/internal/worker"
	"cast-server/migrations"
	"cast-server/pkg/migration"
)

func main() {
	log.Println("Запуск сервиса генерации нарративов (воркер + API)...")

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// --- Запуск HTTP-сервера для метрик Prometheus в отдельной горутине ---
	startMetricsServer(cfg.MetricsPort)

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zapLogger.Sync()

	// Инициализация AI клиента (нужен и воркеру, и API)
	log.Println("Инициализация AI клиента...")
	aiClient, err := service.NewAIClient(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации AI клиента: %v", err)
	}

	// Провайдер промтов: отсутствие директории - ошибка конфигурации
	promptProvider, err := service.NewPromptProvider(cfg.PromptsDir, zapLogger)
	if err != nil {
		log.Fatalf("Ошибка инициализации провайдера промтов: %v", err)
	}

	// Подключаемся к PostgreSQL
	log.Println("Подключение к PostgreSQL...")
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Не удалось подключиться к базе данных: %v", err)
	}
	defer dbPool.Close()
	log.Println("Успешное подключение к PostgreSQL")

	// Применяем миграции из встроенных файлов
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, dbPool)
	if err := migrator.Up(context.Background()); err != nil {
		log.Fatalf("Не удалось применить миграции: %v", err)
	}

	// Подключаемся к Redis (статусы задач, блокировки генерации)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Не удалось подключиться к Redis: %v", err)
	}
	log.Println("Успешное подключение к Redis")

	// Подключаемся к RabbitMQ с логикой повторных попыток
	conn, err := connectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
	}
	defer conn.Close()
	log.Println("Успешное подключение к RabbitMQ")

	// Открываем канал RabbitMQ (нужен для Notifier и Consumer)
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Не удалось открыть канал: %v", err)
	}
	defer ch.Close()
	log.Println("Канал успешно открыт")

	if err := declareQueues(ch); err != nil {
		log.Fatalf("Ошибка настройки очередей RabbitMQ: %v", err)
	}

	// Устанавливаем QoS
	if err := ch.Qos(1, 0, false); err != nil {
		log.Fatalf("Не удалось установить QoS: %v", err)
	}
	log.Println("QoS (prefetch count=1) установлен")

	// Инициализация репозиториев и сервисов
	log.Println("Инициализация репозиториев и нотификатора...")
	figureRepo := repository.NewPostgresFigureRepository(dbPool, zapLogger)
	cacheRepo := repository.NewPostgresNarrativeCacheRepository(dbPool, zapLogger)
	statusRepo := repository.NewRedisTaskStatusRepository(redisClient, zapLogger, cfg.TaskStatusTTL, cfg.GenerationLockTTL)

	notifier, err := service.NewRabbitMQNotifier(ch)
	if err != nil {
		log.Fatalf("Не удалось создать notifier: %v", err)
	}

	orchestrator := narrative.NewOrchestrator(aiClient, promptProvider, figureRepo, cacheRepo, zapLogger, float64(cfg.AITemperature))
	feedbackGen := narrative.NewFeedbackGenerator(aiClient, promptProvider, figureRepo, zapLogger, cfg.DataPath, cfg.FeedbackMaxImages)
	descriptionGen := narrative.NewDescriptionGenerator(aiClient, promptProvider, figureRepo, zapLogger, cfg.DataPath)

	// Создаем обработчик задач воркера
	taskHandler := worker.NewTaskHandler(orchestrator, feedbackGen, descriptionGen, statusRepo, notifier, zapLogger)

	// --- Инициализация и запуск HTTP API сервера ---
	publisher, err := messaging.NewRabbitMQTaskPublisher(conn)
	if err != nil {
		log.Fatalf("Не удалось создать паблишера задач: %v", err)
	}
	apiHandler := api.NewHandler(publisher, cacheRepo, statusRepo, aiClient, zapLogger)
	httpServer := startHTTPServer(cfg, apiHandler, zapLogger)
	log.Printf("HTTP API сервер запущен на порту %s", cfg.HTTPServerPort)

	// Начинаем потреблять сообщения из очереди для воркера
	const consumerTag = "narrative-worker"
	msgs, err := ch.Consume(
		messaging.TaskQueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		log.Fatalf("Не удалось зарегистрировать консьюмера: %v", err)
	}

	// Канал для graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	// Канал для синхронизации завершения горутины обработки сообщений
	done := make(chan struct{})

	log.Println(" [*] Ожидание сообщений и API запросов. Для выхода нажмите CTRL+C")

	go func() {
		defer close(done)
		for msg := range msgs {
			worker.IncrementTasksReceived()

			var payload messaging.GenerationTaskPayload
			if err := json.Unmarshal(msg.Body, &payload); err != nil {
				log.Printf("Ошибка десериализации JSON: %v. Отклоняем сообщение (nack, no requeue).", err)
				worker.IncrementTaskFailed("deserialization")
				msg.Nack(false, false)
				continue
			}

			// Requeue=false: плохие задачи уходят в DLQ, а не крутятся в
			// очереди бесконечно
			if err := taskHandler.Handle(context.Background(), payload); err != nil {
				log.Printf("[TaskID: %s] Ошибка обработки задачи: %v. Отклоняем сообщение (nack, no requeue).", payload.TaskID, err)
				msg.Nack(false, false)
			} else {
				msg.Ack(false)
			}
		}
		log.Println("Канал сообщений закрыт, горутина обработки завершается.")
	}()

	// Ждем либо сигнал остановки, либо закрытие канала сообщений
	select {
	case sig := <-stopChan:
		log.Printf("Получен сигнал %v. Завершение работы...", sig)
		if err := ch.Cancel(consumerTag, false); err != nil {
			log.Printf("Ошибка отмены консьюмера: %v", err)
		}
	case <-done:
		log.Println("Канал сообщений закрыт до получения сигнала.")
	}

	log.Println("Ожидание завершения обработки текущих сообщений...")
	<-done

	// --- Graceful Shutdown для HTTP сервера ---
	log.Println("Остановка HTTP API сервера...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка при остановке HTTP сервера: %v", err)
	} else {
		log.Println("HTTP API сервер успешно остановлен.")
	}

	// conn.Close(), ch.Close(), dbPool.Close(), redisClient.Close() - через defer
	log.Println("Сервис генерации нарративов остановлен.")
}

// declareQueues объявляет DLX, DLQ и основную очередь задач.
func declareQueues(ch *amqp.Channel) error {
	log.Printf("Настройка Dead Letter Exchange ('%s') и Queue ('%s')...", messaging.DeadLetterExchange, messaging.DeadLetterQueue)

	err := ch.ExchangeDeclare(
		messaging.DeadLetterExchange, // name
		"direct",                     // type
		true,                         // durable
		false,                        // auto-deleted
		false,                        // internal
		false,                        // no-wait
		nil,                          // arguments
	)
	if err != nil {
		return fmt.Errorf("не удалось объявить DLX: %w", err)
	}

	_, err = ch.QueueDeclare(
		messaging.DeadLetterQueue, // name
		true,                      // durable
		false,                     // delete when unused
		false,                     // exclusive
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("не удалось объявить Dead Letter Queue '%s': %w", messaging.DeadLetterQueue, err)
	}

	// Связываем DLQ с DLX
	err = ch.QueueBind(
		messaging.DeadLetterQueue,
		messaging.DeadLetterRoutingKey,
		messaging.DeadLetterExchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("не удалось связать DLQ '%s' с DLX '%s': %w", messaging.DeadLetterQueue, messaging.DeadLetterExchange, err)
	}

	// Основная очередь задач: lazy + DLX
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    messaging.DeadLetterExchange,
		"x-dead-letter-routing-key": messaging.DeadLetterRoutingKey,
	}
	_, err = ch.QueueDeclare(
		messaging.TaskQueueName, // name
		true,                    // durable
		false,                   // delete when unused
		false,                   // exclusive
		false,                   // no-wait
		args,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("не удалось объявить очередь '%s': %w", messaging.TaskQueueName, err)
	}
	log.Printf("Очередь '%s' успешно объявлена.", messaging.TaskQueueName)
	return nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Printf("Не удалось подключиться к RabbitMQ (попытка %d/%d): %v. Повтор через %v...", i+1, maxRetries, err, retryDelay)
		time.Sleep(retryDelay)
	}
	return nil, err
}

// startMetricsServer запускает HTTP-сервер для эндпоинта /metrics
func startMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	go func() {
		log.Printf("Запуск HTTP-сервера для метрик Prometheus и health на :%s...", port)
		if err := http.ListenAndServe(":"+port, nil); err != nil {
			log.Fatalf("Ошибка запуска HTTP-сервера для метрик: %v", err)
		}
	}()
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	var dbPool *pgxpool.Pool
	var err error
	maxRetries := 50
	retryDelay := 3 * time.Second

	dsn := cfg.GetDSN()
	poolConfig, parseErr := pgxpool.ParseConfig(dsn)
	if parseErr != nil {
		// DSN некорректен, нет смысла пытаться дальше
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", parseErr)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	log.Printf("Попытка подключения к PostgreSQL (до %d раз с интервалом %v)...", maxRetries, retryDelay)

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1

		// Таймаут на одну попытку подключения и пинга
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			log.Printf("[Попытка %d/%d] Не удалось создать пул соединений: %v", attempt, maxRetries, err)
			cancel()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		if err = dbPool.Ping(ctx); err != nil {
			log.Printf("[Попытка %d/%d] Не удалось выполнить ping к PostgreSQL: %v", attempt, maxRetries, err)
			dbPool.Close()
			cancel()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		cancel()
		log.Printf("Успешное подключение и ping к PostgreSQL (попытка %d)", attempt)
		return dbPool, nil
	}

	return nil, fmt.Errorf("не удалось подключиться к БД после %d попыток: %w", maxRetries, err)
}

// startHTTPServer настраивает gin-роутер и запускает HTTP API сервер.
func startHTTPServer(cfg *config.Config, apiHandler *api.Handler, zapLogger *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.ZapLoggingMiddleware(zapLogger))
	router.Use(gin.Recovery())

	// Configure CORS Middleware
	corsConfig := cors.DefaultConfig()
	if allowedOrigins := cfg.GetAllowedOrigins(); len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		zapLogger.Info("CORSAllowedOrigins not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	apiHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // стриминг может занимать долго
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Запуск HTTP API сервера на порту %s...", cfg.HTTPServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ошибка запуска HTTP API сервера: %v", err)
		}
	}()

	return server
}
