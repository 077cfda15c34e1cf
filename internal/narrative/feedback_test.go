package narrative_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
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

func TestFeedbackGenerator_EmptyStoryboard(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{}, nil).Once()

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), t.TempDir(), 6)
	report, err := g.Generate(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, model.FeedbackSectionMissingItems, report.Items[0].Section)
	// Пустой storyboard не требует обращений к модели
	mockAI.AssertNotCalled(t, "GenerateVision", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockAI.AssertNotCalled(t, "GenerateStructured", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Файлы изображений недоступны - генератор уходит в structured-output путь
// без вложений.
func TestFeedbackGenerator_StructuredPathWithoutImages(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{}, nil).Once()

	mockAI.On("GenerateStructured", mock.Anything, userID.String(), testSystemPrompt,
		mock.Anything, "storyboard_feedback", mock.Anything, mock.Anything).
		Return(service.UsageInfo{}, nil).Once().Run(func(args mock.Arguments) {
		report := args.Get(5).(*model.FeedbackReport)
		report.Items = []model.FeedbackItem{
			{Section: model.FeedbackSectionItemQuality, Title: "Valid", Text: "Sharpen the chart labels."},
			{Section: "bogus_section", Title: "Invalid", Text: "dropped"},
			{Section: model.FeedbackSectionGroupingQuality, Title: "Empty text", Text: "   "},
			{Section: model.FeedbackSectionMissingItems, Title: "Also valid", Text: "Add a conclusion figure."},
		}
	})

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), t.TempDir(), 6)
	report, err := g.Generate(context.Background(), userID)

	require.NoError(t, err)
	// Невалидные секции и пустой текст отфильтрованы
	require.Len(t, report.Items, 2)
	assert.Equal(t, "Valid", report.Items[0].Title)
	assert.Equal(t, "Also valid", report.Items[1].Title)
}

func TestFeedbackGenerator_VisionPathWithImages(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()
	dataPath := t.TempDir()

	// Кладем настоящий файл изображения в рабочую директорию пользователя
	cacheDir := filepath.Join(dataPath, userID.String(), "workspace", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "a.png"), []byte("png-bytes"), 0o644))

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{}, nil).Once()

	mockAI.On("GenerateVision", mock.Anything, userID.String(), testSystemPrompt, mock.Anything,
		mock.MatchedBy(func(images []service.ImageAttachment) bool {
			return len(images) == 1 && images[0].MIMEType == "image/png"
		}), mock.Anything).
		Return("```json\n{\"items\":[{\"section\":\"item_quality\",\"title\":\"Legend\",\"text\":\"Add a legend.\"}]}\n```",
			service.UsageInfo{}, nil).Once()

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), dataPath, 6)
	report, err := g.Generate(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "Legend", report.Items[0].Title)
	mockAI.AssertExpectations(t)
}

func TestFeedbackGenerator_FallbackOnAIFailure(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()

	groupID := uuid.New()
	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart", GroupID: &groupID},
		{Filepath: "b.png", LongDesc: "diagram"},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{
		{ID: groupID, Number: 1, Name: "Setup", Description: "background"},
	}, nil).Once()

	mockAI.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(service.UsageInfo{}, errors.New("quota exceeded")).Once()

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), t.TempDir(), 6)
	report, err := g.Generate(context.Background(), userID)

	// Обратная связь никогда не падает жестко при ошибке модели; сводный
	// пункт строится по счетчикам: фигуры, фигуры без группы, группы
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, model.FeedbackSectionItemQuality, report.Items[0].Section)
	assert.Contains(t, report.Items[0].Text, "2 figures")
	assert.Contains(t, report.Items[0].Text, "1 of them ungrouped")
	assert.Contains(t, report.Items[0].Text, "1 groups")
}

// Структура групп должна попадать в текст запроса: секция grouping_quality
// без нее бессмысленна.
func TestFeedbackGenerator_GroupsIncludedInPrompt(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()
	groupID := uuid.New()

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart", GroupID: &groupID},
		{Filepath: "loose.png", LongDesc: "free"},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{
		{ID: groupID, Number: 1, Name: "Setup", Description: "background"},
	}, nil).Once()

	var captured string
	mockAI.On("GenerateStructured", mock.Anything, userID.String(), testSystemPrompt,
		mock.Anything, "storyboard_feedback", mock.Anything, mock.Anything).
		Return(service.UsageInfo{}, nil).Once().Run(func(args mock.Arguments) {
		captured = args.Get(3).(string)
		report := args.Get(5).(*model.FeedbackReport)
		report.Items = []model.FeedbackItem{
			{Section: model.FeedbackSectionGroupingQuality, Title: "Groups", Text: "Move loose.png into Setup."},
		}
	})

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), t.TempDir(), 6)
	report, err := g.Generate(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Contains(t, captured, "### Group: Setup")
	assert.Contains(t, captured, "Description: background")
	assert.Contains(t, captured, "### Ungrouped Figures:")
	assert.Contains(t, captured, "1 groups")
}

// Нечитаемый файл изображения не должен занимать слот вложения.
func TestFeedbackGenerator_AttachmentCapCountsReadableFilesOnly(t *testing.T) {
	mockAI := mocks.NewMockAIClient(t)
	mockFigures := mocks.NewMockFigureRepository(t)
	userID := uuid.New()
	dataPath := t.TempDir()

	// На диске есть только b.png; a.png идет первой и не читается
	cacheDir := filepath.Join(dataPath, userID.String(), "workspace", "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "b.png"), []byte("png-bytes"), 0o644))

	mockFigures.On("ListStoryboardFigures", mock.Anything, userID).Return([]model.FigureRecord{
		{Filepath: "a.png", LongDesc: "chart"},
		{Filepath: "b.png", LongDesc: "diagram"},
	}, nil).Once()
	mockFigures.On("ListGroups", mock.Anything, userID).Return([]model.GroupRecord{}, nil).Once()

	mockAI.On("GenerateVision", mock.Anything, userID.String(), testSystemPrompt, mock.Anything,
		mock.MatchedBy(func(images []service.ImageAttachment) bool {
			return len(images) == 1 && string(images[0].Raw) == "png-bytes"
		}), mock.Anything).
		Return(`{"items":[{"section":"item_quality","title":"Legend","text":"Add a legend."}]}`,
			service.UsageInfo{}, nil).Once()

	g := narrative.NewFeedbackGenerator(mockAI, newTestPrompts(t), mockFigures, zap.NewNop(), dataPath, 1)
	report, err := g.Generate(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	mockAI.AssertExpectations(t)
}
