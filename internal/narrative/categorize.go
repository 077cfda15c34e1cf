package narrative

import (
	"fmt"
	"regexp"
	"strings"

	"cast-server/internal/model"
)

// Категоризация делается одним батч-запросом: все описания нумеруются
// "[Figure N] файл", модель отвечает строками "[Figure N] файл: категория".
// Если батч-ответ не разобрался ни для одной фигуры, оркестратор падает
// обратно на по-фигурные запросы.

var batchCategoryLine = regexp.MustCompile(`(?i)\[\s*Figure\s*(\d+)\s*\]\s*([^:]+?)\s*:\s*(.+)`)

// FormatBatchInput собирает вход батч-категоризации.
func FormatBatchInput(figures []model.CategorizedFigure) string {
	var b strings.Builder
	for i, f := range figures {
		fmt.Fprintf(&b, "[Figure %d] %s: %s\n", i+1, f.Filepath, f.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseBatchCategories разбирает ответ батч-категоризации в отображение
// "файл -> категория". Строка сопоставляется сначала по имени файла, затем
// по номеру фигуры. Нераспознанные строки пропускаются.
func ParseBatchCategories(response string, figures []model.CategorizedFigure) map[string]string {
	byName := make(map[string]string, len(figures))
	for _, f := range figures {
		byName[strings.ToLower(f.Filepath)] = f.Filepath
	}

	out := make(map[string]string)
	for _, line := range strings.Split(response, "\n") {
		m := batchCategoryLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		filename := strings.TrimSpace(m[2])
		category := strings.TrimSpace(m[3])
		if category == "" {
			continue
		}

		if original, ok := byName[strings.ToLower(filename)]; ok {
			out[original] = category
			continue
		}

		// Имя не совпало (модель могла его переписать) - пробуем по номеру
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n >= 1 && n <= len(figures) {
			out[figures[n-1].Filepath] = category
		}
	}
	return out
}
