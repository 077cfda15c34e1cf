package narrative

import (
	"fmt"
	"strings"

	"cast-server/internal/model"
)

// FigureCollection - промежуточное представление одной партии фигур для
// пайплайна. В плоском режиме весь storyboard - одна безымянная коллекция,
// в групповом режиме коллекция на каждую группу плюс одна для фигур без
// группы. Этапы theme/sequence/story пишутся один раз против этого
// представления.
type FigureCollection struct {
	Name        string // Пустое имя = фигуры без группы (или плоский режим)
	Description string
	Figures     []model.CategorizedFigure
}

// BuildCollections раскладывает фигуры по коллекциям. Группы без фигур на
// storyboard пропускаются. Порядок фигур внутри коллекции сохраняет порядок
// входа.
func BuildCollections(figures []model.FigureRecord, groups []model.GroupRecord, useGroups bool) []FigureCollection {
	if !useGroups {
		flat := FigureCollection{Figures: make([]model.CategorizedFigure, 0, len(figures))}
		for _, f := range figures {
			flat.Figures = append(flat.Figures, model.CategorizedFigure{
				Filepath:    f.Filepath,
				Description: f.LongDesc,
			})
		}
		return []FigureCollection{flat}
	}

	byGroup := make(map[string][]model.CategorizedFigure)
	var ungrouped []model.CategorizedFigure
	for _, f := range figures {
		cf := model.CategorizedFigure{Filepath: f.Filepath, Description: f.LongDesc}
		if f.GroupID == nil {
			ungrouped = append(ungrouped, cf)
			continue
		}
		key := f.GroupID.String()
		byGroup[key] = append(byGroup[key], cf)
	}

	var collections []FigureCollection
	for _, g := range groups {
		figs, ok := byGroup[g.ID.String()]
		if !ok {
			continue
		}
		collections = append(collections, FigureCollection{
			Name:        g.Name,
			Description: g.Description,
			Figures:     figs,
		})
	}
	if len(ungrouped) > 0 {
		collections = append(collections, FigureCollection{Figures: ungrouped})
	}
	return collections
}

// AllFigures возвращает фигуры всех коллекций в порядке обхода.
func AllFigures(collections []FigureCollection) []model.CategorizedFigure {
	var out []model.CategorizedFigure
	for _, c := range collections {
		out = append(out, c.Figures...)
	}
	return out
}

// SetCategories записывает категории обратно в коллекции по имени файла.
// Фигуры без категории получают model.DefaultCategory.
func SetCategories(collections []FigureCollection, categories map[string]string) {
	for ci := range collections {
		for fi := range collections[ci].Figures {
			f := &collections[ci].Figures[fi]
			if cat, ok := categories[f.Filepath]; ok && cat != "" {
				f.Category = cat
			} else {
				f.Category = model.DefaultCategory
			}
		}
	}
}

// FormatDescriptions собирает блок "файл: описание" по всем коллекциям -
// вход этапа определения темы.
func FormatDescriptions(collections []FigureCollection) string {
	var b strings.Builder
	for _, c := range collections {
		for _, f := range c.Figures {
			fmt.Fprintf(&b, "%s: %s\n", f.Filepath, f.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCollections собирает текстовое представление коллекций для промптов
// сиквенсинга, построения истории и обратной связи. Именованные коллекции
// выводятся как группы, безымянная - как список свободных фигур. Единственная
// безымянная коллекция (плоский режим) выводится без заголовка. Фигуры без
// категории (путь обратной связи идет до категоризации) выводятся без
// суффикса категории.
func FormatCollections(collections []FigureCollection) string {
	if len(collections) == 1 && collections[0].Name == "" {
		var b strings.Builder
		for _, f := range collections[0].Figures {
			writeFigureLine(&b, f)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	var b strings.Builder
	for _, c := range collections {
		if c.Name != "" {
			fmt.Fprintf(&b, "\n### Group: %s\n", c.Name)
			fmt.Fprintf(&b, "Description: %s\n", c.Description)
			b.WriteString("Figures in this group:\n")
		} else {
			b.WriteString("\n### Ungrouped Figures:\n")
		}
		for _, f := range c.Figures {
			writeFigureLine(&b, f)
		}
	}
	return strings.TrimSpace(b.String())
}

func writeFigureLine(b *strings.Builder, f model.CategorizedFigure) {
	if f.Category == "" {
		fmt.Fprintf(b, "  - %s: %s\n", f.Filepath, f.Description)
		return
	}
	fmt.Fprintf(b, "  - %s: %s (Category: %s)\n", f.Filepath, f.Description, f.Category)
}

// CategoriesList собирает итоговый список пар "файл/категория".
func CategoriesList(collections []FigureCollection) []model.FigureCategory {
	var out []model.FigureCategory
	for _, c := range collections {
		for _, f := range c.Figures {
			out = append(out, model.FigureCategory{Filename: f.Filepath, Category: f.Category})
		}
	}
	return out
}
