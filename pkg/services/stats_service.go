package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/models"
)

// StatsService serves the aggregate and hierarchy read paths shared by the
// dashboard and the bridge's metrics loop.
type StatsService struct {
	pool *pgxpool.Pool
}

// NewStatsService creates a new StatsService.
func NewStatsService(pool *pgxpool.Pool) *StatsService {
	return &StatsService{pool: pool}
}

// ServerStats counts every table for GET /stats.
func (s *StatsService) ServerStats(ctx context.Context) (*models.ServerStats, error) {
	var st models.ServerStats
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM projects),
		       (SELECT count(*) FROM sessions),
		       (SELECT count(*) FROM requests),
		       (SELECT count(*) FROM tasks),
		       (SELECT count(*) FROM subtasks),
		       (SELECT count(*) FROM actions),
		       (SELECT count(*) FROM agent_messages),
		       (SELECT count(*) FROM subscriptions),
		       (SELECT count(*) FROM blockings)`).Scan(
		&st.Projects, &st.Sessions, &st.Requests, &st.Tasks, &st.Subtasks,
		&st.Actions, &st.Messages, &st.Subscriptions, &st.Blockings)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate server stats: %w", err)
	}
	return &st, nil
}

// ToolsSummary rolls up action counts per tool for GET /stats/tools-summary.
func (s *StatsService) ToolsSummary(ctx context.Context) ([]models.ToolSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tool_name,
		       max(tool_type),
		       count(*),
		       count(*) FILTER (WHERE exit_code IS NULL OR exit_code = 0),
		       COALESCE(avg(duration_ms), 0)
		FROM actions
		GROUP BY tool_name
		ORDER BY count(*) DESC, tool_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tool summary: %w", err)
	}
	defer rows.Close()

	summary := []models.ToolSummary{}
	for rows.Next() {
		var ts models.ToolSummary
		if err := rows.Scan(&ts.ToolName, &ts.ToolType, &ts.Calls, &ts.Successes, &ts.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan tool summary: %w", err)
		}
		summary = append(summary, ts)
	}
	return summary, rows.Err()
}

// DashboardKPIs runs the fixed aggregation set behind GET /api/dashboard/kpis
// and the bridge's metric.update broadcast.
func (s *StatsService) DashboardKPIs(ctx context.Context) (*models.DashboardKPIs, error) {
	var k models.DashboardKPIs
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM sessions WHERE ended_at IS NULL),
		       (SELECT count(*) FROM active_agents),
		       (SELECT count(*) FROM tasks WHERE status = 'pending'),
		       (SELECT count(*) FROM tasks WHERE status = 'running'),
		       (SELECT count(*) FROM agent_messages WHERE created_at > now() - interval '1 hour'),
		       (SELECT count(*)::double precision / 60.0 FROM actions WHERE created_at > now() - interval '1 hour'),
		       (SELECT COALESCE(avg(extract(epoch FROM completed_at - created_at) * 1000), 0)
		        FROM tasks WHERE completed_at IS NOT NULL)`).Scan(
		&k.ActiveSessions, &k.ActiveAgents, &k.PendingTasks, &k.RunningTasks,
		&k.MessagesLastHr, &k.ActionsPerMin, &k.AvgTaskDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard KPIs: %w", err)
	}
	return &k, nil
}

// Hierarchy returns the nested project tree. The request→task→subtask levels
// come back as one JSON-aggregating query to avoid N+1 round trips; sessions
// are a flat second query.
func (s *StatsService) Hierarchy(ctx context.Context, projectID string) (*models.HierarchyNode, error) {
	node := &models.HierarchyNode{}

	project, err := scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("project", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	node.Project = *project

	sessionRows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id = $1 ORDER BY started_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	defer sessionRows.Close()
	node.Sessions = []models.Session{}
	for sessionRows.Next() {
		sess, err := scanSession(sessionRows)
		if err != nil {
			return nil, err
		}
		node.Sessions = append(node.Sessions, *sess)
	}
	if err := sessionRows.Err(); err != nil {
		return nil, err
	}

	var treeJSON []byte
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(jsonb_agg(req ORDER BY req->>'created_at'), '[]'::jsonb)
		FROM (
			SELECT jsonb_build_object(
				'id', r.id,
				'project_id', r.project_id,
				'session_id', r.session_id,
				'prompt', r.prompt,
				'prompt_type', r.prompt_type,
				'status', r.status,
				'metadata', r.metadata,
				'created_at', r.created_at,
				'completed_at', r.completed_at,
				'tasks', COALESCE((
					SELECT jsonb_agg(jsonb_build_object(
						'id', t.id,
						'request_id', t.request_id,
						'name', t.name,
						'wave_number', t.wave_number,
						'status', t.status,
						'created_at', t.created_at,
						'completed_at', t.completed_at,
						'subtasks', COALESCE((
							SELECT jsonb_agg(jsonb_build_object(
								'id', st.id,
								'task_id', st.task_id,
								'agent_type', st.agent_type,
								'agent_id', st.agent_id,
								'description', st.description,
								'status', st.status,
								'blocked_by', to_jsonb(st.blocked_by),
								'context_snapshot', st.context_snapshot,
								'result', st.result,
								'created_at', st.created_at,
								'started_at', st.started_at,
								'completed_at', st.completed_at
							) ORDER BY st.created_at ASC)
							FROM subtasks st WHERE st.task_id = t.id), '[]'::jsonb)
					) ORDER BY t.wave_number ASC, t.created_at ASC)
					FROM tasks t WHERE t.request_id = r.id), '[]'::jsonb)
			) AS req
			FROM requests r
			WHERE r.project_id = $1
		) reqs`, projectID).Scan(&treeJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hierarchy: %w", err)
	}

	node.Requests = []models.HierarchyRequest{}
	if err := json.Unmarshal(treeJSON, &node.Requests); err != nil {
		return nil, fmt.Errorf("failed to decode hierarchy: %w", err)
	}
	return node, nil
}
