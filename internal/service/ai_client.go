package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
	openaischema "github.com/sashabaranov/go-openai/jsonschema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cast-server/internal/config"
)

// Константы цен (за 1М токенов, USD)
const (
	pricePerMillionInputTokensUSD  = 2.5
	pricePerMillionOutputTokensUSD = 10.0
)

// GenerationParams - параметры генерации. Указатели, чтобы отличить 0/0.0
// от отсутствия значения.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// ErrAIGenerationFailed - ошибка при генерации текста AI
var ErrAIGenerationFailed = errors.New("ошибка генерации текста AI")

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_worker_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "kind", "status", "user_id"}, // kind: text/vision/structured/stream
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "kind", "user_id"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "user_id"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model", "user_id"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model", "user_id"},
	)
	aiEstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_worker_ai_estimated_cost_usd_total",
			Help: "Estimated total cost of AI requests in USD.",
		},
		[]string{"model", "user_id"},
	)
)

// UsageInfo содержит информацию об использовании токенов и стоимости
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// ImageAttachment - одно изображение для vision-запроса.
type ImageAttachment struct {
	// Raw - содержимое файла как есть (не base64)
	Raw []byte
	// MIMEType, например "image/png". Пустое значение трактуется как image/png.
	MIMEType string
}

// AIClient интерфейс для взаимодействия с AI API
type AIClient interface {
	// GenerateText генерирует текст на основе системного промта и ввода пользователя.
	GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
	// GenerateVision - как GenerateText, но с изображениями в пользовательском сообщении.
	GenerateVision(ctx context.Context, userID string, systemPrompt string, userInput string, images []ImageAttachment, params GenerationParams) (string, UsageInfo, error)
	// GenerateStructured просит модель вернуть JSON по схеме result
	// и декодирует ответ прямо в result (указатель на структуру).
	GenerateStructured(ctx context.Context, userID string, systemPrompt string, userInput string, schemaName string, result any, params GenerationParams) (UsageInfo, error)
	// GenerateTextStream генерирует текст и вызывает chunkHandler для каждого фрагмента.
	GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
}

// calculateCost рассчитывает оценочную стоимость запроса на основе токенов.
func calculateCost(promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return inputCost + outputCost
}

// ExtractJSON достаёт JSON-объект из ответа модели: сначала пробует текст
// как есть, затем содержимое ```json``` блока, затем подстроку от первой '{'
// до последней '}'.
func ExtractJSON(text string, result any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), result); err == nil {
		return nil
	}

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), result); err == nil {
				return nil
			}
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), result); err == nil {
			return nil
		}
	}

	return fmt.Errorf("не удалось извлечь JSON из ответа модели (%d байт)", len(text))
}

// --- OpenAI Client Implementation ---

// openAIClient реализует AIClient с использованием go-openai
type openAIClient struct {
	client      *openaigo.Client
	model       string
	visionModel string
}

func (c *openAIClient) chat(ctx context.Context, userID, kind string, req openaigo.ChatCompletionRequest) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}
	model := req.Model

	startTime := time.Now()
	log.Printf("Отправка запроса к AI: Model=%s, Kind=%s, UserID: %s", model, kind, userID)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		log.Printf("Ошибка от AI API за %v (userID: %s): %v", duration, userID, err)
		aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "error", "user_id": userID}).Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Printf("AI API вернул пустой ответ за %v (userID: %s)", duration, userID)
		aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "error_empty_response", "user_id": userID}).Inc()
		return "", usageInfo, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "success", "user_id": userID}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model, "kind": kind, "user_id": userID}).Observe(duration.Seconds())

	generatedText := resp.Choices[0].Message.Content
	log.Printf("Ответ от AI API получен за %v. Длина ответа: %d символов. (userID: %s)", duration, len(generatedText), userID)

	if resp.Usage.TotalTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(resp.Usage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(resp.Usage.CompletionTokens))
		aiTotalTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(resp.Usage.TotalTokens))

		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
		usageInfo.EstimatedCostUSD = calculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if usageInfo.EstimatedCostUSD > 0 {
			aiEstimatedCostUSD.With(prometheus.Labels{"model": model, "user_id": userID}).Add(usageInfo.EstimatedCostUSD)
		}
	}

	return generatedText, usageInfo, nil
}

// GenerateText генерирует текст на основе системного промта и ввода пользователя
func (c *openAIClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		log.Printf("Ошибка: Системный промт пуст. userID: %s", userID)
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "text", "status": "error", "user_id": userID}).Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	return c.chat(ctx, userID, "text", openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	})
}

// GenerateVision отправляет запрос с изображениями (data URL, base64).
func (c *openAIClient) GenerateVision(ctx context.Context, userID string, systemPrompt string, userInput string, images []ImageAttachment, params GenerationParams) (string, UsageInfo, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.visionModel, "kind": "vision", "status": "error", "user_id": userID}).Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	parts := []openaigo.ChatMessagePart{
		{Type: openaigo.ChatMessagePartTypeText, Text: userInput},
	}
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Raw))
		parts = append(parts, openaigo.ChatMessagePart{
			Type: openaigo.ChatMessagePartTypeImageURL,
			ImageURL: &openaigo.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openaigo.ImageURLDetailAuto,
			},
		})
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openaigo.ChatMessageRoleUser, MultiContent: parts},
	}

	return c.chat(ctx, userID, "vision", openaigo.ChatCompletionRequest{
		Model:       c.visionModel,
		Messages:    messages,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	})
}

// GenerateStructured просит модель вернуть JSON по схеме result.
func (c *openAIClient) GenerateStructured(ctx context.Context, userID string, systemPrompt string, userInput string, schemaName string, result any, params GenerationParams) (UsageInfo, error) {
	schema, err := openaischema.GenerateSchemaForType(result)
	if err != nil {
		return UsageInfo{}, fmt.Errorf("%w: ошибка генерации JSON-схемы '%s': %v", ErrAIGenerationFailed, schemaName, err)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	text, usageInfo, err := c.chat(ctx, userID, "structured", openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return usageInfo, err
	}

	// Даже при structured output некоторые совместимые бэкенды заворачивают
	// ответ в markdown, поэтому парсим лениво.
	if err := ExtractJSON(text, result); err != nil {
		return usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	return usageInfo, nil
}

// GenerateTextStream генерирует текст в потоковом режиме, вызывая chunkHandler.
func (c *openAIClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usageInfo := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		return usageInfo, fmt.Errorf("%w: системный промт пуст для стриминга", ErrAIGenerationFailed)
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	request := openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	}

	log.Printf("Отправка STREAM запроса к OpenAI: Model=%s, UserID: %s", c.model, userID)

	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		log.Printf("Ошибка создания стрима от OpenAI API (userID: %s): %v", userID, err)
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "error_stream_init", "user_id": userID}).Inc()
		return usageInfo, fmt.Errorf("%w: ошибка создания стрима: %v", ErrAIGenerationFailed, err)
	}
	defer stream.Close()

	startTime := time.Now()
	completionTokensCount := 0
	var finalUsage openaigo.Usage

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("Ошибка чтения из стрима OpenAI (userID: %s): %v", userID, err)
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "error_stream_read", "user_id": userID}).Inc()
			return usageInfo, fmt.Errorf("%w: ошибка чтения стрима: %v", ErrAIGenerationFailed, err)
		}

		// Usage иногда приходит в последнем блоке стрима
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = *response.Usage
		}

		if len(response.Choices) > 0 {
			chunk := response.Choices[0].Delta.Content
			if tke, err := tiktoken.EncodingForModel(c.model); err == nil {
				completionTokensCount += len(tke.Encode(chunk, nil, nil))
			}
			if chunkHandler != nil {
				if err := chunkHandler(chunk); err != nil {
					log.Printf("Ошибка обработчика чанка стрима (userID: %s): %v", userID, err)
				}
			}
		}
	}

	duration := time.Since(startTime)
	aiRequestDuration.With(prometheus.Labels{"model": c.model, "kind": "stream", "user_id": userID}).Observe(duration.Seconds())

	if finalUsage.TotalTokens > 0 {
		usageInfo.PromptTokens = finalUsage.PromptTokens
		usageInfo.CompletionTokens = finalUsage.CompletionTokens
		usageInfo.TotalTokens = finalUsage.TotalTokens
		usageInfo.EstimatedCostUSD = calculateCost(finalUsage.PromptTokens, finalUsage.CompletionTokens)
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "success_stream", "user_id": userID}).Inc()
		aiPromptTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(finalUsage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(finalUsage.CompletionTokens))
		aiTotalTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(finalUsage.TotalTokens))
	} else {
		// Финальный Usage не пришел, оцениваем токены tiktoken-ом
		log.Printf("[WARN] Final usage block not received in stream (userID: %s). Using estimated token counts.", userID)
		if tke, err := tiktoken.EncodingForModel(c.model); err == nil {
			promptTokensCount := len(tke.Encode(systemPrompt, nil, nil)) + len(tke.Encode(userInput, nil, nil))
			usageInfo.PromptTokens = promptTokensCount
			usageInfo.CompletionTokens = completionTokensCount
			usageInfo.TotalTokens = promptTokensCount + completionTokensCount
			usageInfo.EstimatedCostUSD = calculateCost(promptTokensCount, completionTokensCount)
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "success_stream_estimated", "user_id": userID}).Inc()
			aiPromptTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(promptTokensCount))
			aiCompletionTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(completionTokensCount))
			aiTotalTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(usageInfo.TotalTokens))
		} else {
			log.Printf("[ERROR] Could not get tokenizer for model %s to estimate stream tokens (userID: %s).", c.model, userID)
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "success_stream_no_tokens", "user_id": userID}).Inc()
		}
	}

	return usageInfo, nil
}

// --- Вспомогательные функции конвертации указателей ---

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// --- Ollama Client Implementation ---

// ollamaClient реализует AIClient с использованием ollama/api
type ollamaClient struct {
	client      *api.Client
	model       string
	visionModel string
	timeout     time.Duration
}

// newOllamaClient создает новый клиент для взаимодействия с Ollama
func newOllamaClient(cfg *config.Config) (AIClient, error) {
	httpClient := &http.Client{
		Timeout: cfg.AITimeout,
	}

	// api.NewClient требует URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(cfg.AIBaseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, httpClient)

	log.Printf("Ollama Клиент создан. Используемый BaseURL: %s, Model: %s, Timeout: %v", ollamaBaseURL, cfg.AIModel, cfg.AITimeout)

	return &ollamaClient{
		client:      client,
		model:       cfg.AIModel,
		visionModel: cfg.AIVisionModel,
		timeout:     cfg.AITimeout,
	}, nil
}

func (c *ollamaClient) chat(ctx context.Context, userID, kind, model string, req *api.ChatRequest) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	log.Printf("Отправка запроса к Ollama: Model=%s, Kind=%s, UserID: %s", model, kind, userID)

	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})

	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Ошибка таймаута (%v) от Ollama API за %v (userID: %s): %v", c.timeout, duration, userID, err)
		} else {
			log.Printf("Ошибка от Ollama API за %v (userID: %s): %v", duration, userID, err)
		}
		aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "error", "user_id": userID}).Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if resp.Message.Content == "" {
		log.Printf("Ollama API вернул пустой ответ за %v (userID: %s)", duration, userID)
		aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "error_empty_response", "user_id": userID}).Inc()
		return "", usageInfo, fmt.Errorf("%w: получен пустой ответ", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "kind": kind, "status": "success", "user_id": userID}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model, "kind": kind, "user_id": userID}).Observe(duration.Seconds())

	usageInfo.PromptTokens = resp.PromptEvalCount
	usageInfo.CompletionTokens = resp.EvalCount
	usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	// Ollama обычно локальный, стоимость 0
	if usageInfo.TotalTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(usageInfo.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(usageInfo.CompletionTokens))
		aiTotalTokens.With(prometheus.Labels{"model": model, "user_id": userID}).Observe(float64(usageInfo.TotalTokens))
	}

	return resp.Message.Content, usageInfo, nil
}

func ollamaOptions(params GenerationParams) map[string]interface{} {
	return map[string]interface{}{
		"temperature": params.Temperature,
		"top_p":       params.TopP,
		"num_predict": intVal(params.MaxTokens),
	}
}

// GenerateText генерирует текст с использованием Ollama
func (c *ollamaClient) GenerateText(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "text", "status": "error", "user_id": userID}).Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(false),
		Options:  ollamaOptions(params),
	}
	return c.chat(ctx, userID, "text", c.model, req)
}

// GenerateVision отправляет запрос с изображениями через нативное поле Images.
func (c *ollamaClient) GenerateVision(ctx context.Context, userID string, systemPrompt string, userInput string, images []ImageAttachment, params GenerationParams) (string, UsageInfo, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.visionModel, "kind": "vision", "status": "error", "user_id": userID}).Inc()
		return "", UsageInfo{}, fmt.Errorf("%w: системный промт пуст", ErrAIGenerationFailed)
	}

	imageData := make([]api.ImageData, 0, len(images))
	for _, img := range images {
		imageData = append(imageData, api.ImageData(img.Raw))
	}

	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userInput, Images: imageData},
	}

	req := &api.ChatRequest{
		Model:    c.visionModel,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(false),
		Options:  ollamaOptions(params),
	}
	return c.chat(ctx, userID, "vision", c.visionModel, req)
}

// GenerateStructured - Ollama не поддерживает JSON-схемы, используем
// format:"json" и лениво парсим ответ.
func (c *ollamaClient) GenerateStructured(ctx context.Context, userID string, systemPrompt string, userInput string, schemaName string, result any, params GenerationParams) (UsageInfo, error) {
	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(false),
		Format:   json.RawMessage(`"json"`),
		Options:  ollamaOptions(params),
	}

	text, usageInfo, err := c.chat(ctx, userID, "structured", c.model, req)
	if err != nil {
		return usageInfo, err
	}

	if err := ExtractJSON(text, result); err != nil {
		return usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}
	return usageInfo, nil
}

// GenerateTextStream генерирует текст с использованием Ollama в потоковом режиме
func (c *ollamaClient) GenerateTextStream(ctx context.Context, userID string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		return usageInfo, fmt.Errorf("%w: системный промт пуст для стриминга", ErrAIGenerationFailed)
	}

	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(true),
		Options:  ollamaOptions(params),
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	log.Printf("Отправка STREAM запроса к Ollama: Model=%s, UserID: %s", c.model, userID)

	var promptTokens, completionTokens int

	err := c.client.Chat(requestCtx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			if err := chunkHandler(resp.Message.Content); err != nil {
				log.Printf("Ошибка обработки чанка стрима Ollama (userID: %s): %v", userID, err)
				return fmt.Errorf("ошибка обработчика стрима: %w", err)
			}
		}

		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				log.Printf("Стрим Ollama завершился не по причине 'stop': %s", resp.DoneReason)
			}
		}
		return nil
	})

	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Ошибка таймаута (%v) во время стриминга Ollama за %v (userID: %s): %v", c.timeout, duration, userID, err)
		} else {
			log.Printf("Ошибка во время стриминга Ollama за %v (userID: %s): %v", duration, userID, err)
		}
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "error_stream", "user_id": userID}).Inc()
		return usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": "stream", "status": "success_stream", "user_id": userID}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model, "kind": "stream", "user_id": userID}).Observe(duration.Seconds())

	if promptTokens > 0 || completionTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(promptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(completionTokens))
		aiTotalTokens.With(prometheus.Labels{"model": c.model, "user_id": userID}).Observe(float64(promptTokens + completionTokens))
	}

	usageInfo.PromptTokens = promptTokens
	usageInfo.CompletionTokens = completionTokens
	usageInfo.TotalTokens = promptTokens + completionTokens

	return usageInfo, nil
}

// --- Factory Function ---

// NewAIClient создает новый клиент для взаимодействия с AI в зависимости от конфигурации
func NewAIClient(cfg *config.Config) (AIClient, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		log.Printf("Используется реализация AI клиента: OpenAI")
		openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
		if cfg.AIBaseURL != "" {
			openaiConfig.BaseURL = cfg.AIBaseURL
		}
		openaiConfig.HTTPClient = &http.Client{
			Timeout: cfg.AITimeout,
		}
		client := openaigo.NewClientWithConfig(openaiConfig)
		log.Printf("OpenAI Клиент создан. Используемый BaseURL: %s, Model: %s, Timeout: %v", cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
		return &openAIClient{
			client:      client,
			model:       cfg.AIModel,
			visionModel: cfg.AIVisionModel,
		}, nil
	case "ollama":
		log.Printf("Используется реализация AI клиента: Ollama")
		return newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.AIClientType)
	}
}
