package types

// RubricItem names one of the five facilitation techniques scored after
// a session.
type RubricItem string

const (
	RubricGoalSetting        RubricItem = "goal_setting"
	RubricRoleDelegation     RubricItem = "role_delegation"
	RubricOpinionElicitation RubricItem = "opinion_elicitation"
	RubricSummarizing        RubricItem = "summarizing"
	RubricTimeManagement     RubricItem = "time_management"
)

// RubricItems lists all items in report order.
func RubricItems() []RubricItem {
	return []RubricItem{
		RubricGoalSetting,
		RubricRoleDelegation,
		RubricOpinionElicitation,
		RubricSummarizing,
		RubricTimeManagement,
	}
}

// ScoreMethod records which path produced a score.
type ScoreMethod string

const (
	ScoreMethodJudge   ScoreMethod = "judge"   // batched LLM judgment
	ScoreMethodKeyword ScoreMethod = "keyword" // deterministic fallback
)

// ItemVerdict is the 0/1 outcome for a single rubric item.
type ItemVerdict struct {
	Achieved         bool   `json:"achieved"`
	Justification    string `json:"justification,omitempty"`
	UtteranceIndexes []int  `json:"utterance_indexes,omitempty"`
}

// FacilitationScore holds the full post-session assessment. Judge and
// keyword paths produce the identical shape so downstream reporting is
// judge-agnostic.
type FacilitationScore struct {
	Items  map[RubricItem]ItemVerdict `json:"items"`
	Total  int                        `json:"total"`
	Method ScoreMethod                `json:"method"`
}

// NewFacilitationScore returns an all-zero score with every rubric item
// present, so the shape invariant holds even before any item is set.
func NewFacilitationScore(method ScoreMethod) FacilitationScore {
	items := make(map[RubricItem]ItemVerdict, 5)
	for _, it := range RubricItems() {
		items[it] = ItemVerdict{}
	}
	return FacilitationScore{Items: items, Method: method}
}

// Set records a verdict and keeps Total consistent.
func (s *FacilitationScore) Set(item RubricItem, v ItemVerdict) {
	prev := s.Items[item]
	if prev.Achieved && !v.Achieved {
		s.Total--
	}
	if !prev.Achieved && v.Achieved {
		s.Total++
	}
	s.Items[item] = v
}
