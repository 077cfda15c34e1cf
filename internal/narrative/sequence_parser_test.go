package narrative_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cast-server/internal/narrative"
)

func TestExtractFigureFilenames_StepPattern(t *testing.T) {
	response := `Here is the recommended order:

Step 1: **intro_chart.png**
- Step 2 - results.jpg
Step 3: "conclusion.webp"

Justification: the story flows from setup to payoff.`

	got := narrative.ExtractFigureFilenames(response)
	assert.Equal(t, []string{"intro_chart.png", "results.jpg", "conclusion.webp"}, got)
}

func TestExtractFigureFilenames_EnumeratedList(t *testing.T) {
	response := `1) first.png
2. second.jpeg
- third.gif
* fourth.bmp`

	got := narrative.ExtractFigureFilenames(response)
	assert.Equal(t, []string{"first.png", "second.jpeg", "third.gif", "fourth.bmp"}, got)
}

func TestExtractFigureFilenames_BareFallback(t *testing.T) {
	response := `The figure sales.png should come before the map (regions.tiff).`

	got := narrative.ExtractFigureFilenames(response)
	assert.Equal(t, []string{"sales.png", "regions.tiff"}, got)
}

// Первый матчер, давший совпадения, выигрывает: имена вне Step-строк
// игнорируются, даже если их нашел бы запасной матчер.
func TestExtractFigureFilenames_FirstTierWins(t *testing.T) {
	response := `Based on overview.png and details.jpg:

Step 1: details.jpg
Step 2: overview.png`

	got := narrative.ExtractFigureFilenames(response)
	assert.Equal(t, []string{"details.jpg", "overview.png"}, got)
}

func TestExtractFigureFilenames_DedupeCaseInsensitive(t *testing.T) {
	response := `Step 1: Chart.PNG
Step 2: chart.png
Step 3: other.png`

	got := narrative.ExtractFigureFilenames(response)
	assert.Equal(t, []string{"Chart.PNG", "other.png"}, got)
}

func TestExtractFigureFilenames_CleansPunctuation(t *testing.T) {
	got := narrative.ExtractFigureFilenames(`Use (timeline.png), then [flow.jpg].`)
	assert.Equal(t, []string{"timeline.png", "flow.jpg"}, got)
}

func TestExtractFigureFilenames_EmptyInput(t *testing.T) {
	got := narrative.ExtractFigureFilenames("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractFigureFilenames_NoFilenames(t *testing.T) {
	got := narrative.ExtractFigureFilenames("No figures were mentioned at all.")
	assert.Empty(t, got)
}

func TestWrapFigureMarker(t *testing.T) {
	assert.Equal(t, "[FIGURE: plot.png]", narrative.WrapFigureMarker("plot.png"))
}

func TestExtractFigureMarkers(t *testing.T) {
	got := narrative.ExtractFigureMarkers("Step 1: a.png\nStep 2: b.jpg")
	assert.Equal(t, []string{"[FIGURE: a.png]", "[FIGURE: b.jpg]"}, got)
}
