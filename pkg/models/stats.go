package models

import "time"

// ServerStats is the GET /stats payload.
type ServerStats struct {
	Projects      int `json:"projects"`
	Sessions      int `json:"sessions"`
	Requests      int `json:"requests"`
	Tasks         int `json:"tasks"`
	Subtasks      int `json:"subtasks"`
	Actions       int `json:"actions"`
	Messages      int `json:"messages"`
	Subscriptions int `json:"subscriptions"`
	Blockings     int `json:"blockings"`
}

// ToolSummary is one row of GET /stats/tools-summary.
type ToolSummary struct {
	ToolName      string  `json:"tool_name"`
	ToolType      string  `json:"tool_type"`
	Calls         int     `json:"calls"`
	Successes     int     `json:"successes"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// SessionStats is the GET /sessions/stats payload.
type SessionStats struct {
	Total          int     `json:"total"`
	Active         int     `json:"active"`
	Ended          int     `json:"ended"`
	AvgToolsUsed   float64 `json:"avg_tools_used"`
	TotalToolsUsed int64   `json:"total_tools_used"`
	TotalErrors    int64   `json:"total_errors"`
}

// ActiveSession is one row of GET /active-sessions.
type ActiveSession struct {
	Session
	ProjectPath    *string `json:"project_path,omitempty"`
	ActiveSubtasks int     `json:"active_subtasks"`
}

// HourlyActionCount is one bucket of GET /actions/hourly.
type HourlyActionCount struct {
	Hour     time.Time `json:"hour"`
	Count    int       `json:"count"`
	Errors   int       `json:"errors"`
	AvgMS    float64   `json:"avg_duration_ms"`
	Distinct int       `json:"distinct_tools"`
}

// DashboardKPIs is the metric bundle served at GET /api/dashboard/kpis and
// broadcast by the bridge's metrics loop as metric.update.
type DashboardKPIs struct {
	ActiveSessions  int     `json:"active_sessions"`
	ActiveAgents    int     `json:"active_agents"`
	PendingTasks    int     `json:"pending_tasks"`
	RunningTasks    int     `json:"running_tasks"`
	MessagesLastHr  int     `json:"messages_last_hour"`
	ActionsPerMin   float64 `json:"actions_per_minute"`
	AvgTaskDuration float64 `json:"avg_task_duration_ms"`
}

// AgentContextStats summarizes the agent_contexts table.
type AgentContextStats struct {
	Total          int `json:"total"`
	LiveAgents     int `json:"live_agents"`
	CompactRows    int `json:"compact_snapshots"`
	DistinctTypes  int `json:"distinct_agent_types"`
	ProjectsCovers int `json:"projects_covered"`
}
