package narrative

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cast-server/internal/repository"
	"cast-server/internal/service"
)

const promptGenerateDescription = "generate_description"

// DescriptionGenerator делает vision-запрос по одной фигуре и сохраняет
// полученное длинное описание обратно в хранилище фигур.
type DescriptionGenerator struct {
	ai       service.AIClient
	prompts  *service.PromptProvider
	figures  repository.FigureRepository
	logger   *zap.Logger
	dataPath string
}

// NewDescriptionGenerator создает генератор описаний фигур.
func NewDescriptionGenerator(
	ai service.AIClient,
	prompts *service.PromptProvider,
	figures repository.FigureRepository,
	logger *zap.Logger,
	dataPath string,
) *DescriptionGenerator {
	return &DescriptionGenerator{
		ai:       ai,
		prompts:  prompts,
		figures:  figures,
		logger:   logger.Named("DescriptionGenerator"),
		dataPath: dataPath,
	}
}

// Generate строит описание для фигуры и записывает его в репозиторий.
// В отличие от пайплайна нарратива здесь ошибки жесткие: частичное описание
// хуже отсутствующего.
func (g *DescriptionGenerator) Generate(ctx context.Context, userID, figureID uuid.UUID) (string, error) {
	figure, err := g.figures.GetByID(ctx, userID, figureID)
	if err != nil {
		return "", err
	}

	imagePath := filepath.Join(g.dataPath, userID.String(), "workspace", "cache", figure.Filepath)
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read figure image %s: %w", figure.Filepath, err)
	}

	description, _, err := g.ai.GenerateVision(ctx, userID.String(),
		systemPromptAssistant,
		g.prompts.Get(promptGenerateDescription),
		[]service.ImageAttachment{{Raw: raw, MIMEType: mimeTypeByExt(figure.Filepath)}},
		g.params(),
	)
	if err != nil {
		return "", err
	}

	if err := g.figures.UpdateLongDescription(ctx, userID, figureID, description); err != nil {
		return "", err
	}

	g.logger.Info("Figure description generated",
		zap.String("user_id", userID.String()),
		zap.String("figure_id", figureID.String()),
		zap.Int("length", len(description)),
	)
	return description, nil
}

func (g *DescriptionGenerator) params() service.GenerationParams {
	t := 0.1
	return service.GenerationParams{Temperature: &t}
}
