package models

import "time"

// Project is the root of the work hierarchy, keyed by filesystem path.
type Project struct {
	ID        string         `json:"id"`
	Path      string         `json:"path"`
	Name      *string        `json:"name,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Session is one agent host session. The ID is client-supplied.
type Session struct {
	ID             string         `json:"id"`
	ProjectID      *string        `json:"project_id,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	TotalToolsUsed int            `json:"total_tools_used"`
	TotalSuccess   int            `json:"total_success"`
	TotalErrors    int            `json:"total_errors"`
	Metadata       map[string]any `json:"metadata"`
}

// Request represents one user prompt within a session.
type Request struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	SessionID   string         `json:"session_id"`
	Prompt      string         `json:"prompt"`
	PromptType  string         `json:"prompt_type"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Task groups sibling subtasks executing as one wave.
type Task struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"request_id"`
	Name        string     `json:"name"`
	WaveNumber  int        `json:"wave_number"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Subtask is a single unit of agent work.
type Subtask struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	AgentType       *string        `json:"agent_type,omitempty"`
	AgentID         *string        `json:"agent_id,omitempty"`
	Description     string         `json:"description"`
	Status          string         `json:"status"`
	BlockedBy       []string       `json:"blocked_by"`
	ContextSnapshot map[string]any `json:"context_snapshot"`
	Result          map[string]any `json:"result,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Action records one tool invocation produced by a lifecycle hook.
// Input and output are returned decompressed.
type Action struct {
	ID         string         `json:"id"`
	SubtaskID  *string        `json:"subtask_id,omitempty"`
	SessionID  *string        `json:"session_id,omitempty"`
	ToolName   string         `json:"tool_name"`
	ToolType   string         `json:"tool_type"`
	Input      string         `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	FilePaths  []string       `json:"file_paths"`
	ExitCode   *int           `json:"exit_code,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HierarchyNode is the nested tree returned by GET /hierarchy/{project_id}.
type HierarchyNode struct {
	Project  Project            `json:"project"`
	Sessions []Session          `json:"sessions"`
	Requests []HierarchyRequest `json:"requests"`
}

// HierarchyRequest is a request with its nested tasks.
type HierarchyRequest struct {
	Request
	Tasks []HierarchyTask `json:"tasks"`
}

// HierarchyTask is a task with its nested subtasks.
type HierarchyTask struct {
	Task
	Subtasks []Subtask `json:"subtasks"`
}
