package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cast-server/internal/model"
	"cast-server/internal/repository"
	"cast-server/internal/service"
)

// Системный промт всех этапов пайплайна.
const systemPromptAssistant = "You are a helpful assistant."

// Имена файлов промптов
const (
	promptCategorizeFigure      = "categorize_figures"
	promptCategorizeFigureBatch = "categorize_figures_batch"
	promptUnderstandTheme       = "understand_theme_objective"
	promptSequenceFigures       = "sequence_figures"
	promptSequenceFiguresGroups = "sequence_figures_with_groups"
	promptBuildStory            = "build_story"
	promptBuildStoryGroups      = "build_story_with_groups"
	promptStoryDefinition       = "story_definition"
)

// CompletionOutcome - результат одного обращения к модели. При ошибке Text
// содержит самоописывающийся текст ("Error <этап>: <причина>"), который
// уезжает дальше по пайплайну вместо настоящего ответа: один упавший этап
// не роняет генерацию целиком, но помечает результат как Degraded.
type CompletionOutcome struct {
	Text string
	Err  error
}

// Degraded сообщает, был ли этап заменен текстом ошибки.
func (o CompletionOutcome) Degraded() bool {
	return o.Err != nil
}

// Orchestrator прогоняет пайплайн генерации нарратива:
// категоризация -> тема -> сиквенсинг -> история -> разбор порядка -> кеш.
type Orchestrator struct {
	ai          service.AIClient
	prompts     *service.PromptProvider
	figures     repository.FigureRepository
	cache       repository.NarrativeCacheRepository
	logger      *zap.Logger
	temperature float64
}

// NewOrchestrator создает оркестратор пайплайна.
func NewOrchestrator(
	ai service.AIClient,
	prompts *service.PromptProvider,
	figures repository.FigureRepository,
	cache repository.NarrativeCacheRepository,
	logger *zap.Logger,
	temperature float64,
) *Orchestrator {
	return &Orchestrator{
		ai:          ai,
		prompts:     prompts,
		figures:     figures,
		cache:       cache,
		logger:      logger.Named("Orchestrator"),
		temperature: temperature,
	}
}

func (o *Orchestrator) params() service.GenerationParams {
	t := o.temperature
	return service.GenerationParams{Temperature: &t}
}

// complete выполняет одно обращение к модели. stageLabel попадает в текст
// ошибки в форме "Error <stageLabel>: <причина>".
func (o *Orchestrator) complete(ctx context.Context, userID, userInput, stageLabel string) CompletionOutcome {
	text, _, err := o.ai.GenerateText(ctx, userID, systemPromptAssistant, userInput, o.params())
	if err != nil {
		o.logger.Error("Pipeline stage failed",
			zap.String("stage", stageLabel),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return CompletionOutcome{Text: fmt.Sprintf("Error %s: %v", stageLabel, err), Err: err}
	}
	return CompletionOutcome{Text: strings.TrimSpace(text)}
}

// categorizeAll присваивает категорию каждой фигуре. Сначала один
// батч-запрос; если его ответ не удалось разобрать ни для одной фигуры -
// по-фигурные запросы. Возвращает отображение "файл -> категория" и флаг
// деградации.
func (o *Orchestrator) categorizeAll(ctx context.Context, userID string, figures []model.CategorizedFigure) (map[string]string, bool) {
	batchInput := fmt.Sprintf("### Input\nDescriptions of figures:\n%s\n\n%s",
		FormatBatchInput(figures), o.prompts.Get(promptCategorizeFigureBatch))

	outcome := o.complete(ctx, userID, batchInput, "categorizing figures")
	if outcome.Err == nil {
		if parsed := ParseBatchCategories(outcome.Text, figures); len(parsed) > 0 {
			return parsed, false
		}
		o.logger.Warn("Batch categorization response not parseable, falling back to per-figure calls",
			zap.String("user_id", userID))
	}

	degraded := false
	out := make(map[string]string, len(figures))
	for _, f := range figures {
		input := fmt.Sprintf("### Input\nThis is a single figure description:\n%s\n\n%s",
			f.Description, o.prompts.Get(promptCategorizeFigure))
		single := o.complete(ctx, userID, input, "categorizing figure")
		if single.Err != nil {
			out[f.Filepath] = model.DefaultCategory
			degraded = true
			continue
		}
		out[f.Filepath] = single.Text
	}
	return out, degraded
}

// structureGuidance дополняет промт сиквенсинга выбранным шаблоном
// повествования. Неизвестный идентификатор - ошибка запроса.
func (o *Orchestrator) structureGuidance(structureID string) (string, error) {
	if structureID == "" {
		return "", nil
	}
	structure, err := model.StoryStructureByID(structureID)
	if err != nil {
		return "", fmt.Errorf("story structure %q: %w", structureID, err)
	}
	return fmt.Sprintf(
		"\n\n### Story Structure to Follow\nUse the following narrative structure as guidance:\n%s: %s\nApproach: %s\n\nReference from available structures:\n%s\n",
		structure.Name, structure.Description, structure.Approach,
		o.prompts.Get(promptStoryDefinition),
	), nil
}

// Generate прогоняет полный пайплайн для пользователя и сохраняет результат
// в кеш. Отсутствие пригодных фигур - типизированная ошибка без единого
// обращения к модели и без изменения кеша. Ошибка записи в кеш - жесткая:
// результат без персистентности бесполезен.
func (o *Orchestrator) Generate(ctx context.Context, userID uuid.UUID, structureID string, useGroups bool) (*model.NarrativeResult, error) {
	uid := userID.String()

	figures, err := o.figures.ListStoryboardFigures(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(figures) == 0 {
		return nil, model.ErrNoStoryboardFigures
	}

	var groups []model.GroupRecord
	if useGroups {
		groups, err = o.figures.ListGroups(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	guidance, err := o.structureGuidance(structureID)
	if err != nil {
		return nil, err
	}

	collections := BuildCollections(figures, groups, useGroups)
	allFigures := AllFigures(collections)

	o.logger.Info("Narrative generation started",
		zap.String("user_id", uid),
		zap.Int("figures", len(allFigures)),
		zap.Bool("use_groups", useGroups),
		zap.String("structure", structureID),
	)

	categories, degraded := o.categorizeAll(ctx, uid, allFigures)
	SetCategories(collections, categories)

	themeInput := fmt.Sprintf("### Input\nDescriptions of figures:\n%s\n\n%s",
		FormatDescriptions(collections), o.prompts.Get(promptUnderstandTheme))
	theme := o.complete(ctx, uid, themeInput, "understanding theme and objective")

	sequencePromptName := promptSequenceFigures
	sequenceLabel := "sequencing figures"
	buildPromptName := promptBuildStory
	buildLabel := "building story"
	if useGroups {
		sequencePromptName = promptSequenceFiguresGroups
		sequenceLabel = "sequencing figures with groups"
		buildPromptName = promptBuildStoryGroups
		buildLabel = "building story with groups"
	}

	sequenceInput := fmt.Sprintf("### Input\nDescriptions and categories of figures:\n%s\n\nTopic theme and objective:\n%s\n\n%s%s",
		FormatCollections(collections), theme.Text, o.prompts.Get(sequencePromptName), guidance)
	sequence := o.complete(ctx, uid, sequenceInput, sequenceLabel)

	storyInput := fmt.Sprintf("### Input\nDescriptions and categories of figures:\n%s\n\nSequence:\n%s\n\n%s",
		FormatCollections(collections), sequence.Text, o.prompts.Get(buildPromptName))
	story := o.complete(ctx, uid, storyInput, buildLabel)

	// Порядок фильтруется по входному набору фигур: придуманные моделью
	// имена файлов в результат не попадают.
	known := make(map[string]bool, len(allFigures))
	for _, f := range allFigures {
		known[strings.ToLower(f.Filepath)] = true
	}
	var order []string
	for _, name := range ExtractFigureFilenames(sequence.Text) {
		if known[strings.ToLower(name)] {
			order = append(order, WrapFigureMarker(name))
		}
	}

	result := &model.NarrativeResult{
		UserID:                userID,
		Narrative:             story.Text,
		RecommendedOrder:      order,
		Theme:                 theme.Text,
		Categories:            CategoriesList(collections),
		SequenceJustification: sequence.Text,
		Degraded:              degraded || theme.Degraded() || sequence.Degraded() || story.Degraded(),
		UpdatedAt:             time.Now().UTC(),
	}

	if err := o.cache.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist narrative: %w", err)
	}

	o.logger.Info("Narrative generation finished",
		zap.String("user_id", uid),
		zap.Int("order_len", len(order)),
		zap.Bool("degraded", result.Degraded),
	)
	return result, nil
}
