package models

// CreateProjectRequest creates or upserts a project by path.
type CreateProjectRequest struct {
	Path     string         `json:"path"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateSessionRequest registers a new session at startup.
type CreateSessionRequest struct {
	SessionID   string         `json:"session_id"`
	ProjectID   string         `json:"project_id,omitempty"`
	ProjectPath string         `json:"project_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateSessionRequest patches a session.
type UpdateSessionRequest struct {
	Ended    *bool          `json:"ended,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateRequestRequest records one user prompt.
type CreateRequestRequest struct {
	ProjectID   string         `json:"project_id,omitempty"`
	ProjectPath string         `json:"project_path,omitempty"`
	SessionID   string         `json:"session_id"`
	Prompt      string         `json:"prompt"`
	PromptType  string         `json:"prompt_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateRequestRequest patches a request.
type UpdateRequestRequest struct {
	Status   *string        `json:"status,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateTaskRequest creates a wave of work under a request.
type CreateTaskRequest struct {
	RequestID  string `json:"request_id"`
	Name       string `json:"name"`
	WaveNumber *int   `json:"wave_number,omitempty"`
	Status     string `json:"status,omitempty"`
}

// UpdateTaskRequest patches a task.
type UpdateTaskRequest struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty"`
}

// CreateSubtaskRequest creates a unit of agent work under a task.
type CreateSubtaskRequest struct {
	TaskID          string         `json:"task_id"`
	AgentType       string         `json:"agent_type,omitempty"`
	AgentID         string         `json:"agent_id,omitempty"`
	Description     string         `json:"description"`
	Status          string         `json:"status,omitempty"`
	BlockedBy       []string       `json:"blocked_by,omitempty"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
}

// UpdateSubtaskRequest patches a subtask.
type UpdateSubtaskRequest struct {
	Status          *string        `json:"status,omitempty"`
	AgentType       *string        `json:"agent_type,omitempty"`
	AgentID         *string        `json:"agent_id,omitempty"`
	Description     *string        `json:"description,omitempty"`
	BlockedBy       []string       `json:"blocked_by,omitempty"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
}

// CreateActionRequest is the fire-and-forget hook ingest payload.
type CreateActionRequest struct {
	SubtaskID   string         `json:"subtask_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	ProjectPath string         `json:"project_path,omitempty"`
	ToolName    string         `json:"tool_name"`
	ToolType    string         `json:"tool_type,omitempty"`
	Input       string         `json:"input,omitempty"`
	Output      string         `json:"output,omitempty"`
	FilePaths   []string       `json:"file_paths,omitempty"`
	ExitCode    *int           `json:"exit_code,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListParams is the common pagination envelope for list endpoints.
type ListParams struct {
	Limit  int
	Offset int
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items  []T   `json:"items"`
	Count  int   `json:"count"`
	Total  *int  `json:"total,omitempty"`
	Limit  int   `json:"limit"`
	Offset int64 `json:"offset"`
}

// NewListResponse builds the standard pagination envelope.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	return ListResponse[T]{
		Items:  items,
		Count:  len(items),
		Limit:  limit,
		Offset: int64(offset),
	}
}
