package model

// StoryStructure описывает один из предопределённых шаблонов повествования.
// Набор статический: пользователь выбирает шаблон в UI, воркер подставляет
// Approach в промпт сиквенсинга.
type StoryStructure struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Approach    string `json:"approach"`
}

var storyStructures = []StoryStructure{
	{
		ID:          "cause_and_effect",
		Name:        "Cause and Effect",
		Description: "Present a cause, then walk through its consequences step by step.",
		Approach:    "Open with the triggering event or condition, then trace each consequence in order, making the causal links between figures explicit.",
	},
	{
		ID:          "question_answer",
		Name:        "Question and Answer",
		Description: "Pose a central question, then build the answer across the figures.",
		Approach:    "Start by raising the key question the material answers, then use each figure as a step toward the resolution, closing with a direct answer.",
	},
	{
		ID:          "time_based",
		Name:        "Chronological",
		Description: "Arrange the material along a timeline from earliest to latest.",
		Approach:    "Order the figures by when their content happens, marking transitions in time clearly so the progression reads as a single timeline.",
	},
	{
		ID:          "factor_analysis",
		Name:        "Factor Analysis",
		Description: "Break a phenomenon into its contributing factors.",
		Approach:    "Name the overall phenomenon first, then dedicate a passage to each contributing factor, and end by weighing their relative importance.",
	},
	{
		ID:          "overview_to_detail",
		Name:        "Overview to Detail",
		Description: "Give the big picture first, then zoom into specifics.",
		Approach:    "Begin with a figure or summary that frames the whole topic, then descend level by level into the detailed figures, keeping each detail tied back to the overview.",
	},
	{
		ID:          "problem_solution",
		Name:        "Problem and Solution",
		Description: "State a problem, then present the path to solving it.",
		Approach:    "Establish the problem and its stakes up front, present evidence of its scope, then move through the solution steps to a concrete outcome.",
	},
	{
		ID:          "comparative",
		Name:        "Comparative",
		Description: "Compare two or more subjects across the same dimensions.",
		Approach:    "Introduce the subjects being compared, then alternate between them dimension by dimension, finishing with what the comparison shows.",
	},
	{
		ID:          "workflow_process",
		Name:        "Workflow / Process",
		Description: "Describe a process as an ordered sequence of stages.",
		Approach:    "Present the figures as stages of one process, stating what each stage consumes and produces, so the narrative reads as an end-to-end walkthrough.",
	},
	{
		ID:          "shock_lead",
		Name:        "Shock Lead",
		Description: "Lead with the most striking material to hook the audience.",
		Approach:    "Open with the most surprising or dramatic figure, then backtrack to explain how things got there, resolving the tension raised by the opening.",
	},
}

// StoryStructures возвращает копию списка доступных шаблонов.
func StoryStructures() []StoryStructure {
	out := make([]StoryStructure, len(storyStructures))
	copy(out, storyStructures)
	return out
}

// StoryStructureByID ищет шаблон по идентификатору.
func StoryStructureByID(id string) (StoryStructure, error) {
	for _, s := range storyStructures {
		if s.ID == id {
			return s, nil
		}
	}
	return StoryStructure{}, ErrNotFound
}
