package narrative_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cast-server/internal/model"
	"cast-server/internal/narrative"
)

func testFigures() []model.CategorizedFigure {
	return []model.CategorizedFigure{
		{Filepath: "sales.png", Description: "quarterly sales chart"},
		{Filepath: "flow.jpg", Description: "deployment pipeline diagram"},
	}
}

func TestFormatBatchInput(t *testing.T) {
	got := narrative.FormatBatchInput(testFigures())
	want := "[Figure 1] sales.png: quarterly sales chart\n[Figure 2] flow.jpg: deployment pipeline diagram"
	assert.Equal(t, want, got)
}

func TestParseBatchCategories_ByName(t *testing.T) {
	response := `[Figure 1] sales.png: Data Visualization
[Figure 2] flow.jpg: Process Diagram`

	got := narrative.ParseBatchCategories(response, testFigures())
	assert.Equal(t, map[string]string{
		"sales.png": "Data Visualization",
		"flow.jpg":  "Process Diagram",
	}, got)
}

// Модель переписала имя файла - строка сопоставляется по номеру фигуры.
func TestParseBatchCategories_IndexFallback(t *testing.T) {
	response := `[Figure 1] the sales figure: Data Visualization
[Figure 2] FLOW.JPG: Process Diagram`

	got := narrative.ParseBatchCategories(response, testFigures())
	assert.Equal(t, map[string]string{
		"sales.png": "Data Visualization",
		"flow.jpg":  "Process Diagram",
	}, got)
}

func TestParseBatchCategories_SkipsGarbage(t *testing.T) {
	response := `Here are the categories:
[Figure 1] sales.png: Data Visualization
some unrelated commentary
[Figure 99] unknown.png: Ghost`

	got := narrative.ParseBatchCategories(response, testFigures())
	assert.Equal(t, map[string]string{"sales.png": "Data Visualization"}, got)
}

func TestParseBatchCategories_UnparsableResponse(t *testing.T) {
	got := narrative.ParseBatchCategories("I could not categorize anything.", testFigures())
	assert.Empty(t, got)
}
