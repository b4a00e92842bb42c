package models

import "time"

// Routing score bounds. Scores are clamped on every write.
const (
	MinRoutingScore = 0.1
	MaxRoutingScore = 5.0
)

// KeywordToolScore is one learned keyword→tool association.
type KeywordToolScore struct {
	ID           string    `json:"id"`
	Keyword      string    `json:"keyword"`
	ToolName     string    `json:"tool_name"`
	ToolType     string    `json:"tool_type"`
	Score        float64   `json:"score"`
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	LastUsed     time.Time `json:"last_used"`
}

// RoutingSuggestion is one suggested tool for a keyword query.
type RoutingSuggestion struct {
	ToolName   string  `json:"tool_name"`
	ToolType   string  `json:"tool_type"`
	Score      float64 `json:"score"`
	MatchCount int     `json:"match_count"`
	UsageCount int     `json:"usage_count"`
}

// RoutingSuggestParams filters GET /routing/suggest.
type RoutingSuggestParams struct {
	Keywords []string
	ToolType string
	MinScore float64
	Limit    int
}

// RoutingSuggestResponse includes a pipe-delimited compat line for shell
// consumers alongside the structured suggestions.
type RoutingSuggestResponse struct {
	Suggestions  []RoutingSuggestion `json:"suggestions"`
	CompatOutput string              `json:"compat_output"`
}

// RoutingFeedbackRequest adjusts scores for explicitly chosen/rejected tools.
type RoutingFeedbackRequest struct {
	ToolName string   `json:"tool_name"`
	Keywords []string `json:"keywords"`
	Chosen   bool     `json:"chosen"`
}

// RoutingStats summarizes the routing store.
type RoutingStats struct {
	TotalRows        int                `json:"total_rows"`
	DistinctKeywords int                `json:"distinct_keywords"`
	DistinctTools    int                `json:"distinct_tools"`
	TopScores        []KeywordToolScore `json:"top_scores"`
}
