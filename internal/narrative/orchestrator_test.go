package narrative_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cast-server/internal/mocks"
	"cast-server/internal/model"
	"cast-server/internal/narrative"
	"cast-server/internal/service"
)

const testSystemPrompt = "You are a helpful assistant."

// newTestPrompts создает временную директорию с файлами промтов.
func newTestPrompts(t *testing.T) *service.PromptProvider {
	t.Helper()
	dir := t.TempDir()
	names := []string{
		"categorize_figures", "categorize_figures_batch",
		"understand_theme_objective", "sequence_figures",
		"sequence_figures_with_groups", "build_story",
		"build_story_with_groups", "story_definition",
		"feedback", "generate_description",
	}
	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte("Prompt: "+name), 0o644)
		require.NoError(t, err)
	}
	provider, err := service.NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)
	return provider
}

func TestOrchestrator_Generate_NoFigures(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{}, nil).Once()

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	result, err := o.Generate(context.Background(), userID, "", false)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, model.ErrNoStoryboardFigures)
	// Ни одного обращения к модели и никаких изменений кеша
	mockAI.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockCache.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestOrchestrator_Generate_UnknownStructure(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
	}, nil).Once()

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	_, err := o.Generate(context.Background(), userID, "no_such_structure", false)

	assert.ErrorIs(t, err, model.ErrNotFound)
	mockAI.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Generate_EndToEnd(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()
	uid := userID.String()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "rising.png", LongDesc: "sales rising"},
		{Filepath: "falling.png", LongDesc: "sales falling"},
	}, nil).Once()

	// Батч-категоризация
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "[Figure 1] rising.png: sales rising")
		}), mock.Anything).
		Return("[Figure 1] rising.png: Chart\n[Figure 2] falling.png: Chart", service.UsageInfo{}, nil).Once()

	// Тема
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: understand_theme_objective")
		}), mock.Anything).
		Return("Sales dynamics over the year.", service.UsageInfo{}, nil).Once()

	// Сиквенсинг: модель упоминает лишний файл, он должен отфильтроваться
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: sequence_figures")
		}), mock.Anything).
		Return("Step 1: rising.png\nStep 2: falling.png\nStep 3: hallucinated.png", service.UsageInfo{}, nil).Once()

	// История
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: build_story")
		}), mock.Anything).
		Return("First [FIGURE: rising.png], then [FIGURE: falling.png].", service.UsageInfo{}, nil).Once()

	mockCache.On("Upsert", mock.Anything, mock.AnythingOfType("*model.NarrativeResult")).Return(nil).Once()

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	result, err := o.Generate(context.Background(), userID, "", false)

	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, "First [FIGURE: rising.png], then [FIGURE: falling.png].", result.Narrative)
	assert.Equal(t, []string{"[FIGURE: rising.png]", "[FIGURE: falling.png]"}, result.RecommendedOrder)
	assert.Equal(t, "Sales dynamics over the year.", result.Theme)
	assert.Len(t, result.Categories, 2)
	assert.Equal(t, "Chart", result.Categories[0].Category)
	assert.False(t, result.Degraded)
	mockAI.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestOrchestrator_Generate_StageFailureIsDegraded(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()
	uid := userID.String()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
	}, nil).Once()

	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: categorize_figures_batch")
		}), mock.Anything).
		Return("[Figure 1] a.png: Chart", service.UsageInfo{}, nil).Once()

	// Этап темы падает - его текст заменяется сообщением об ошибке, пайплайн
	// продолжается
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: understand_theme_objective")
		}), mock.Anything).
		Return("", service.UsageInfo{}, errors.New("timeout")).Once()

	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: sequence_figures")
		}), mock.Anything).
		Return("Step 1: a.png", service.UsageInfo{}, nil).Once()

	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: build_story")
		}), mock.Anything).
		Return("Story with [FIGURE: a.png].", service.UsageInfo{}, nil).Once()

	var saved *model.NarrativeResult
	mockCache.On("Upsert", mock.Anything, mock.AnythingOfType("*model.NarrativeResult")).
		Return(nil).Once().Run(func(args mock.Arguments) {
		saved = args.Get(1).(*model.NarrativeResult)
	})

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	result, err := o.Generate(context.Background(), userID, "", false)

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Theme, "Error understanding theme and objective:")
	require.NotNil(t, saved)
	assert.Equal(t, result, saved)
}

func TestOrchestrator_Generate_CacheWriteFailureIsHard(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
	}, nil).Once()
	mockAI.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("[Figure 1] a.png: Chart", service.UsageInfo{}, nil)
	mockCache.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	result, err := o.Generate(context.Background(), userID, "", false)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist narrative")
}

func TestOrchestrator_Generate_GroupedMode(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	mockCache := mocks.NewMockNarrativeCacheRepository(t)
	userID := uuid.New()
	uid := userID.String()
	groupID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart", GroupID: &groupID},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{
		{ID: groupID, Number: 1, Name: "Setup", Description: "background"},
	}, nil).Once()

	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: categorize_figures_batch")
		}), mock.Anything).
		Return("[Figure 1] a.png: Chart", service.UsageInfo{}, nil).Once()
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: understand_theme_objective")
		}), mock.Anything).
		Return("theme", service.UsageInfo{}, nil).Once()

	// Групповой режим использует групповые варианты промтов
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: sequence_figures_with_groups") &&
				strings.Contains(input, "### Group: Setup")
		}), mock.Anything).
		Return("Step 1: a.png", service.UsageInfo{}, nil).Once()
	mockAI.On("GenerateText", mock.Anything, uid, testSystemPrompt,
		mock.MatchedBy(func(input string) bool {
			return strings.Contains(input, "Prompt: build_story_with_groups")
		}), mock.Anything).
		Return("story", service.UsageInfo{}, nil).Once()

	mockCache.On("Upsert", mock.Anything, mock.Anything).Return(nil).Once()

	o := narrative.NewOrchestrator(mockAI, newTestPrompts(t), mockFigures, mockCache, zap.NewNop(), 0.1)
	result, err := o.Generate(context.Background(), userID, "", true)

	require.NoError(t, err)
	assert.Equal(t, []string{"[FIGURE: a.png]"}, result.RecommendedOrder)
	mockAI.AssertExpectations(t)
}
