package models

// Prompt types accepted on request creation.
var PromptTypes = map[string]bool{
	"feature":  true,
	"debug":    true,
	"explain":  true,
	"search":   true,
	"refactor": true,
	"test":     true,
	"review":   true,
	"other":    true,
}

// Request statuses.
var RequestStatuses = map[string]bool{
	"active":    true,
	"completed": true,
	"failed":    true,
	"cancelled": true,
}

// Task statuses.
var TaskStatuses = map[string]bool{
	"pending":   true,
	"running":   true,
	"completed": true,
	"failed":    true,
	"blocked":   true,
}

// Subtask statuses.
var SubtaskStatuses = map[string]bool{
	"pending":   true,
	"running":   true,
	"paused":    true,
	"blocked":   true,
	"completed": true,
	"failed":    true,
}

// Tool types accepted on action ingest.
var ToolTypes = map[string]bool{
	"builtin": true,
	"agent":   true,
	"skill":   true,
	"command": true,
	"mcp":     true,
}

// Message topics form a closed set.
var MessageTopics = map[string]bool{
	"task.created":      true,
	"task.completed":    true,
	"task.failed":       true,
	"context.request":   true,
	"context.response":  true,
	"alert.blocking":    true,
	"agent.heartbeat":   true,
	"workflow.progress": true,
	"agent.completed":   true,
}

// Compact snapshot triggers.
var CompactTriggers = map[string]bool{
	"auto":      true,
	"manual":    true,
	"proactive": true,
}

// IsTerminalStatus reports whether a request/task/subtask status implies a
// completion timestamp.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}
