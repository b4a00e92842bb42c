// Package brief renders the bounded markdown document an agent receives when
// it asks "what was I doing?". Generation is a pure function over a snapshot
// loaded by the caller: no caching, no shared state, safe to run concurrently
// for the same agent.
package brief

import (
	"math"
	"strings"
	"time"

	"github.com/swarmhq/hive/pkg/models"
)

// Token budget bounds.
const (
	DefaultMaxTokens = 2000
	MinMaxTokens     = 100
	MaxMaxTokens     = 8000
)

// History bounds.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// charsPerToken approximates tokens from characters.
const charsPerToken = 3.5

// Input is the database snapshot a brief is rendered from.
type Input struct {
	AgentID   string
	AgentType string

	Session  *models.Session
	Project  *models.Project
	Subtasks []models.Subtask
	Messages []models.AgentMessage
	Blocking []models.Blocking
	Actions  []models.Action

	// Snapshot is the role_context payload of a compact-snapshot row; its
	// saved tasks, files and decisions render after the template body.
	Snapshot map[string]any

	// CompactSummary, when set, is appended under a Previous Context Summary
	// heading after the template body.
	CompactSummary string

	MaxTokens int
}

// ClampMaxTokens applies the budget bounds, defaulting when unset.
func ClampMaxTokens(v *int) int {
	if v == nil || *v == 0 {
		return DefaultMaxTokens
	}
	if *v < MinMaxTokens {
		return MinMaxTokens
	}
	if *v > MaxMaxTokens {
		return MaxMaxTokens
	}
	return *v
}

// ClampHistoryLimit applies the action-history bounds, defaulting when unset.
func ClampHistoryLimit(v *int) int {
	if v == nil || *v == 0 {
		return DefaultHistoryLimit
	}
	if *v < 1 {
		return 1
	}
	if *v > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return *v
}

// EstimateTokens approximates the token count of a rendered document.
func EstimateTokens(content string) int {
	return int(math.Ceil(float64(len(content)) / charsPerToken))
}

// Generate renders the brief for the snapshot, applying the token budget.
func Generate(in Input) models.Brief {
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	tpl := selectTemplate(in.AgentType)
	content, sources := tpl.render(in)

	if in.CompactSummary != "" {
		content += "\n## Previous Context Summary\n\n" + in.CompactSummary + "\n"
		sources = append(sources, "compact_summary")
	}

	content, truncated := applyBudget(content, maxTokens)

	return models.Brief{
		Content:     content,
		TokenCount:  EstimateTokens(content),
		Truncated:   truncated,
		GeneratedAt: time.Now().UTC(),
		Sources:     sources,
	}
}

// truncationNotice is appended when the budget forced content out.
const truncationNotice = "\n_...content truncated to fit token budget_\n"

// applyBudget drops content lines from the end (never lines starting with #)
// until the document fits, then appends a truncation notice.
func applyBudget(content string, maxTokens int) (string, bool) {
	if EstimateTokens(content) <= maxTokens {
		return content, false
	}

	lines := strings.Split(content, "\n")
	kept := make([]bool, len(lines))
	for i := range lines {
		kept[i] = true
	}

	// Walk content lines from the end, dropping until within budget. The
	// notice itself counts against the budget.
	budget := maxTokens - EstimateTokens(truncationNotice)
	if budget < 0 {
		budget = 0
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "#") {
			continue
		}
		kept[i] = false
		if estimateKept(lines, kept) <= budget {
			break
		}
	}

	var b strings.Builder
	for i, line := range lines {
		if kept[i] {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(truncationNotice)
	return b.String(), true
}

func estimateKept(lines []string, kept []bool) int {
	total := 0
	for i, line := range lines {
		if kept[i] {
			total += len(line) + 1
		}
	}
	return int(math.Ceil(float64(total) / charsPerToken))
}
