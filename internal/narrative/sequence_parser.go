package narrative

import (
	"fmt"
	"regexp"
	"strings"
)

// Разбор ответа этапа сиквенсинга: модель возвращает свободный текст, из
// которого нужно достать имена файлов фигур в рекомендованном порядке.
// Матчеры упорядочены от самого структурированного к запасному; побеждает
// первый, давший хотя бы одно совпадение.

const (
	imageExts       = `(?:png|jpg|jpeg|bmp|tiff|gif|webp)`
	filenamePattern = `([A-Za-z0-9_\-./]+\.` + imageExts + `)`
)

var sequenceMatchers = []*regexp.Regexp{
	// "- Step 1: **file.png**" | "Step 2 - chart.tiff"
	regexp.MustCompile(`(?i)(?:^|\n)\s*(?:-|\*|\x{2022})?\s*Step\s*\d+\s*[:\-]?\s*(?:\*\*|` + "`" + `|"|')?\s*` + filenamePattern + `\s*(?:\*\*|` + "`" + `|"|')?`),
	// "1) file.png" | "1. file.png" | "- file.png" | "* file.png" | "• file.png"
	regexp.MustCompile(`(?i)(?:^|\n)\s*(?:-|\*|\x{2022}|\d+[.)])\s*(?:\*\*|` + "`" + `|"|')?\s*` + filenamePattern + `\s*(?:\*\*|` + "`" + `|"|')?`),
	// Запасной вариант: любой токен, похожий на имя файла, где угодно в тексте
	regexp.MustCompile(`(?i)` + filenamePattern),
}

// cleanFilename убирает случайную пунктуацию вокруг имени файла.
func cleanFilename(name string) string {
	name = strings.TrimRight(name, ".,);:]")
	name = strings.TrimLeft(name, "([")
	return name
}

// ExtractFigureFilenames возвращает имена файлов из ответа сиквенсинга в
// порядке первого появления. Дубликаты (без учета регистра) отбрасываются.
// Пустой вход - пустой результат.
func ExtractFigureFilenames(sequenceResponse string) []string {
	if sequenceResponse == "" {
		return []string{}
	}

	found := []string{}
	seen := make(map[string]bool)

	for _, matcher := range sequenceMatchers {
		for _, m := range matcher.FindAllStringSubmatch(sequenceResponse, -1) {
			name := cleanFilename(strings.TrimSpace(m[1]))
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				found = append(found, name)
			}
		}
		// Останавливаемся на первом матчере, давшем результат
		if len(found) > 0 {
			break
		}
	}

	return found
}

// WrapFigureMarker оборачивает имя файла в маркер, который фронтенд
// подставляет вместо текста: "[FIGURE: plot.png]".
func WrapFigureMarker(filename string) string {
	return fmt.Sprintf("[FIGURE: %s]", filename)
}

// ExtractFigureMarkers - как ExtractFigureFilenames, но каждый элемент
// обернут в маркер фигуры.
func ExtractFigureMarkers(sequenceResponse string) []string {
	filenames := ExtractFigureFilenames(sequenceResponse)
	markers := make([]string, len(filenames))
	for i, name := range filenames {
		markers[i] = WrapFigureMarker(name)
	}
	return markers
}
