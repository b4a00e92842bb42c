package models

import "time"

// CompactSnapshotAgentType marks agent_contexts rows that hold compact
// snapshots rather than live agent state.
const CompactSnapshotAgentType = "compact-snapshot"

// CompactSnapshotAgentIDPrefix prefixes the agent_id of compact snapshot rows.
const CompactSnapshotAgentIDPrefix = "compact-snapshot:"

// AgentContext is either a live agent state row or a compact snapshot,
// distinguished by AgentType.
type AgentContext struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	AgentID         string         `json:"agent_id"`
	AgentType       string         `json:"agent_type"`
	RoleContext     map[string]any `json:"role_context"`
	SkillsToRestore []string       `json:"skills_to_restore"`
	ToolsUsed       []string       `json:"tools_used"`
	ProgressSummary *string        `json:"progress_summary,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastUpdated     time.Time      `json:"last_updated"`
}

// UpsertAgentContextRequest upserts a live agent state row on (project, agent).
type UpsertAgentContextRequest struct {
	ProjectID       string         `json:"project_id,omitempty"`
	ProjectPath     string         `json:"project_path,omitempty"`
	AgentID         string         `json:"agent_id"`
	AgentType       string         `json:"agent_type"`
	RoleContext     map[string]any `json:"role_context,omitempty"`
	SkillsToRestore []string       `json:"skills_to_restore,omitempty"`
	ToolsUsed       []string       `json:"tools_used,omitempty"`
	ProgressSummary string         `json:"progress_summary,omitempty"`
}

// CompactSaveRequest is the pre-compaction snapshot.
type CompactSaveRequest struct {
	SessionID      string           `json:"session_id"`
	Trigger        string           `json:"trigger"`
	ContextSummary string           `json:"context_summary,omitempty"`
	ActiveTasks    []map[string]any `json:"active_tasks,omitempty"`
	ModifiedFiles  []string         `json:"modified_files,omitempty"`
	KeyDecisions   []string         `json:"key_decisions,omitempty"`
	AgentStates    []map[string]any `json:"agent_states,omitempty"`
}

// CompactRestoreRequest asks for a post-compaction restoration brief.
type CompactRestoreRequest struct {
	SessionID      string `json:"session_id"`
	AgentID        string `json:"agent_id"`
	AgentType      string `json:"agent_type,omitempty"`
	CompactSummary string `json:"compact_summary,omitempty"`
	MaxTokens      *int   `json:"max_tokens,omitempty"`
}

// CompactStatus reports whether a session has a snapshot and was compacted.
type CompactStatus struct {
	Exists         bool       `json:"exists"`
	Compacted      bool       `json:"compacted"`
	CompactedAt    *time.Time `json:"compacted_at,omitempty"`
	CompactSummary string     `json:"compact_summary,omitempty"`
	CompactAgent   string     `json:"compact_agent,omitempty"`
}

// GenerateBriefRequest asks "what was I doing?" for an agent in a session.
type GenerateBriefRequest struct {
	SessionID       string `json:"session_id"`
	AgentID         string `json:"agent_id"`
	AgentType       string `json:"agent_type,omitempty"`
	MaxTokens       *int   `json:"max_tokens,omitempty"`
	HistoryLimit    *int   `json:"history_limit,omitempty"`
	IncludeHistory  *bool  `json:"include_history,omitempty"`
	IncludeMessages *bool  `json:"include_messages,omitempty"`
	IncludeBlocking *bool  `json:"include_blocking,omitempty"`
}

// Brief is the bounded markdown document returned to an agent.
type Brief struct {
	Content     string    `json:"content"`
	TokenCount  int       `json:"token_count"`
	Truncated   bool      `json:"truncated"`
	GeneratedAt time.Time `json:"generated_at"`
	Sources     []string  `json:"sources"`
}
