package narrative

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cast-server/internal/model"
	"cast-server/internal/repository"
	"cast-server/internal/service"
)

const promptFeedback = "feedback"

// FeedbackGenerator собирает критику storyboard одним structured-output
// запросом с приложенными изображениями фигур.
type FeedbackGenerator struct {
	ai        service.AIClient
	prompts   *service.PromptProvider
	figures   repository.FigureRepository
	logger    *zap.Logger
	dataPath  string
	maxImages int
}

// NewFeedbackGenerator создает генератор обратной связи. dataPath - корень
// рабочих директорий пользователей, maxImages ограничивает число изображений
// в одном vision-запросе.
func NewFeedbackGenerator(
	ai service.AIClient,
	prompts *service.PromptProvider,
	figures repository.FigureRepository,
	logger *zap.Logger,
	dataPath string,
	maxImages int,
) *FeedbackGenerator {
	return &FeedbackGenerator{
		ai:        ai,
		prompts:   prompts,
		figures:   figures,
		logger:    logger.Named("FeedbackGenerator"),
		dataPath:  dataPath,
		maxImages: maxImages,
	}
}

// figureImagePath - путь к файлу изображения внутри рабочей директории
// пользователя.
func (g *FeedbackGenerator) figureImagePath(userID uuid.UUID, filename string) string {
	return filepath.Join(g.dataPath, userID.String(), "workspace", "cache", filename)
}

func mimeTypeByExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Generate возвращает отчет с 1-4 пунктами критики storyboard. Пустой
// storyboard дает фиксированный пункт без единого обращения к модели.
// Ошибка модели или неразборчивый ответ деградируют до одного сводного
// пункта - обратная связь никогда не падает жестко.
func (g *FeedbackGenerator) Generate(ctx context.Context, userID uuid.UUID) (*model.FeedbackReport, error) {
	uid := userID.String()

	figures, err := g.figures.ListStoryboardFigures(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(figures) == 0 {
		return &model.FeedbackReport{Items: []model.FeedbackItem{{
			Section: model.FeedbackSectionMissingItems,
			Title:   "No storyboard images",
			Text:    "The storyboard is empty. Add figures with descriptions before requesting feedback.",
		}}}, nil
	}

	groups, err := g.figures.ListGroups(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Прикладываем первые maxImages читаемых файлов как изображения,
	// остальные фигуры описываются только текстом. Нечитаемый файл не
	// занимает слот вложения.
	var images []service.ImageAttachment
	for _, f := range figures {
		if len(images) >= g.maxImages {
			break
		}
		raw, err := os.ReadFile(g.figureImagePath(userID, f.Filepath))
		if err != nil {
			g.logger.Warn("Failed to read figure image, describing in text only",
				zap.String("user_id", uid),
				zap.String("filepath", f.Filepath),
				zap.Error(err),
			)
			continue
		}
		images = append(images, service.ImageAttachment{Raw: raw, MIMEType: mimeTypeByExt(f.Filepath)})
	}

	// Структура групп уходит в запрос: без нее модели не о чем судить в
	// секции grouping_quality.
	collections := BuildCollections(figures, groups, true)
	userInput := fmt.Sprintf("### Input\nStoryboard figures (%d total, %d groups, %d attached as images):\n%s\n\n%s",
		len(figures), len(groups), len(images), FormatCollections(collections), g.prompts.Get(promptFeedback))

	report := &model.FeedbackReport{}
	if len(images) > 0 {
		// Vision-путь: structured output недоступен вместе с изображениями
		// у всех бэкендов, поэтому просим JSON текстом и парсим лениво.
		text, _, visionErr := g.ai.GenerateVision(ctx, uid, systemPromptAssistant, userInput, images, g.params())
		if visionErr == nil {
			visionErr = service.ExtractJSON(text, report)
		}
		err = visionErr
	} else {
		_, err = g.ai.GenerateStructured(ctx, uid, systemPromptAssistant, userInput, "storyboard_feedback", report, g.params())
	}

	if err != nil {
		g.logger.Warn("Feedback generation degraded to summary item",
			zap.String("user_id", uid),
			zap.Error(err),
		)
		return g.summaryFallback(figures, groups), nil
	}

	items := report.Items[:0]
	for _, item := range report.Items {
		if !model.IsValidFeedbackSection(item.Section) || strings.TrimSpace(item.Text) == "" {
			continue
		}
		items = append(items, item)
		if len(items) == model.MaxFeedbackItems {
			break
		}
	}
	if len(items) == 0 {
		return g.summaryFallback(figures, groups), nil
	}
	report.Items = items
	return report, nil
}

func (g *FeedbackGenerator) params() service.GenerationParams {
	t := 0.1
	return service.GenerationParams{Temperature: &t}
}

// summaryFallback - единственный сводный пункт по счетчикам storyboard,
// когда содержательный отчет получить не удалось.
func (g *FeedbackGenerator) summaryFallback(figures []model.FigureRecord, groups []model.GroupRecord) *model.FeedbackReport {
	ungrouped := 0
	for _, f := range figures {
		if f.GroupID == nil {
			ungrouped++
		}
	}
	return &model.FeedbackReport{Items: []model.FeedbackItem{{
		Section: model.FeedbackSectionItemQuality,
		Title:   "Storyboard summary",
		Text: fmt.Sprintf(
			"The storyboard contains %d figures with descriptions, %d of them ungrouped, across %d groups. Detailed feedback is temporarily unavailable; try again later.",
			len(figures), ungrouped, len(groups)),
	}}}
}
