package model

// FeedbackSection - одна из трёх фиксированных секций обратной связи.
type FeedbackSection string

const (
	FeedbackSectionMissingItems    FeedbackSection = "missing_items"
	FeedbackSectionItemQuality     FeedbackSection = "item_quality"
	FeedbackSectionGroupingQuality FeedbackSection = "grouping_quality"
)

// IsValidFeedbackSection проверяет, что секция входит в допустимый набор.
func IsValidFeedbackSection(s FeedbackSection) bool {
	switch s {
	case FeedbackSectionMissingItems, FeedbackSectionItemQuality, FeedbackSectionGroupingQuality:
		return true
	default:
		return false
	}
}

// FeedbackItem - один пункт критики storyboard.
type FeedbackItem struct {
	Section FeedbackSection `json:"section"`
	Title   string          `json:"title"`
	Text    string          `json:"text"`
}

// FeedbackReport - структура, которую модель обязана вернуть при
// structured-output запросе (1-4 пункта).
type FeedbackReport struct {
	Items []FeedbackItem `json:"items"`
}

// MaxFeedbackItems ограничивает количество пунктов в ответе.
const MaxFeedbackItems = 4
