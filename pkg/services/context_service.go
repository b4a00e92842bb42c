package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swarmhq/hive/pkg/brief"
	"github.com/swarmhq/hive/pkg/models"
)

// ContextService manages agent context rows — both live agent state and
// compact snapshots — and drives brief generation.
type ContextService struct {
	pool     *pgxpool.Pool
	sessions *SessionService
}

// NewContextService creates a new ContextService.
func NewContextService(pool *pgxpool.Pool, sessions *SessionService) *ContextService {
	return &ContextService{pool: pool, sessions: sessions}
}

const agentContextColumns = `id, project_id, agent_id, agent_type, role_context, skills_to_restore, tools_used, progress_summary, created_at, last_updated`

func scanAgentContext(row pgx.Row) (*models.AgentContext, error) {
	var ac models.AgentContext
	var projectID *string
	var roleContextJSON []byte
	err := row.Scan(&ac.ID, &projectID, &ac.AgentID, &ac.AgentType, &roleContextJSON,
		&ac.SkillsToRestore, &ac.ToolsUsed, &ac.ProgressSummary, &ac.CreatedAt, &ac.LastUpdated)
	if err != nil {
		return nil, err
	}
	if projectID != nil {
		ac.ProjectID = *projectID
	}
	if err := unmarshalJSONB(roleContextJSON, &ac.RoleContext); err != nil {
		return nil, err
	}
	return &ac, nil
}

// UpsertAgentContext upserts a live agent state row on (project, agent).
func (s *ContextService) UpsertAgentContext(ctx context.Context, req models.UpsertAgentContextRequest) (*models.AgentContext, error) {
	if req.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if req.AgentType == "" {
		return nil, NewValidationError("agent_type", "required")
	}

	roleContextJSON, err := marshalJSONB(req.RoleContext)
	if err != nil {
		return nil, err
	}
	skills := req.SkillsToRestore
	if skills == nil {
		skills = []string{}
	}
	tools := req.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	var progress *string
	if req.ProgressSummary != "" {
		progress = &req.ProgressSummary
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var projectID *string
	switch {
	case req.ProjectID != "":
		projectID = &req.ProjectID
	case req.ProjectPath != "":
		id, err := upsertProjectTx(ctx, tx, req.ProjectPath)
		if err != nil {
			return nil, err
		}
		projectID = &id
	}

	ac, err := scanAgentContext(tx.QueryRow(ctx, `
		INSERT INTO agent_contexts (project_id, agent_id, agent_type, role_context, skills_to_restore, tools_used, progress_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id, agent_id) DO UPDATE SET
			agent_type        = EXCLUDED.agent_type,
			role_context      = agent_contexts.role_context || EXCLUDED.role_context,
			skills_to_restore = EXCLUDED.skills_to_restore,
			tools_used        = EXCLUDED.tools_used,
			progress_summary  = COALESCE(EXCLUDED.progress_summary, agent_contexts.progress_summary)
		RETURNING `+agentContextColumns,
		projectID, req.AgentID, req.AgentType, roleContextJSON, skills, tools, progress))
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, NewNotFoundError("project", req.ProjectID)
		}
		return nil, fmt.Errorf("failed to upsert agent context: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit agent context: %w", err)
	}
	return ac, nil
}

// GetAgentContext returns the most recently updated context row for an agent.
func (s *ContextService) GetAgentContext(ctx context.Context, agentID string) (*models.AgentContext, error) {
	ac, err := scanAgentContext(s.pool.QueryRow(ctx,
		`SELECT `+agentContextColumns+` FROM agent_contexts
		 WHERE agent_id = $1
		 ORDER BY last_updated DESC
		 LIMIT 1`, agentID))
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("agent context", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent context: %w", err)
	}
	return ac, nil
}

// ListAgentContexts returns a page of context rows, optionally filtered by
// agent type.
func (s *ContextService) ListAgentContexts(ctx context.Context, agentType string, params models.ListParams) ([]models.AgentContext, error) {
	limit := clampLimit(params.Limit, 100, 100)

	query := `SELECT ` + agentContextColumns + ` FROM agent_contexts`
	args := []any{limit, params.Offset}
	if agentType != "" {
		args = append(args, agentType)
		query += ` WHERE agent_type = $3`
	}
	query += ` ORDER BY last_updated DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent contexts: %w", err)
	}
	defer rows.Close()

	contexts := []models.AgentContext{}
	for rows.Next() {
		ac, err := scanAgentContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent context: %w", err)
		}
		contexts = append(contexts, *ac)
	}
	return contexts, rows.Err()
}

// AgentContextStats summarizes the agent_contexts table.
func (s *ContextService) AgentContextStats(ctx context.Context) (*models.AgentContextStats, error) {
	var st models.AgentContextStats
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE agent_type <> $1),
		       count(*) FILTER (WHERE agent_type = $1),
		       count(DISTINCT agent_type),
		       count(DISTINCT project_id)
		FROM agent_contexts`, models.CompactSnapshotAgentType).Scan(
		&st.Total, &st.LiveAgents, &st.CompactRows, &st.DistinctTypes, &st.ProjectsCovers)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate agent context stats: %w", err)
	}
	return &st, nil
}

// CompactSave stores a pre-compaction snapshot as an agent_contexts row keyed
// by the session, overwriting any earlier snapshot for the same session.
func (s *ContextService) CompactSave(ctx context.Context, req models.CompactSaveRequest) (*models.AgentContext, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if !models.CompactTriggers[req.Trigger] {
		return nil, NewValidationError("trigger", fmt.Sprintf("unknown trigger %q", req.Trigger))
	}

	payload := map[string]any{
		"session_id":      req.SessionID,
		"trigger":         req.Trigger,
		"context_summary": req.ContextSummary,
		"active_tasks":    req.ActiveTasks,
		"modified_files":  req.ModifiedFiles,
		"key_decisions":   req.KeyDecisions,
		"agent_states":    req.AgentStates,
	}
	payloadJSON, err := marshalJSONB(payload)
	if err != nil {
		return nil, err
	}

	// The snapshot inherits the session's project when one is known; sessions
	// that never announced a project store a projectless snapshot.
	var projectID *string
	err = s.pool.QueryRow(ctx,
		`SELECT project_id FROM sessions WHERE id = $1`, req.SessionID).Scan(&projectID)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to resolve session project: %w", err)
	}

	ac, err := scanAgentContext(s.pool.QueryRow(ctx, `
		INSERT INTO agent_contexts (project_id, agent_id, agent_type, role_context)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, agent_id) DO UPDATE SET
			role_context = EXCLUDED.role_context
		RETURNING `+agentContextColumns,
		projectID, models.CompactSnapshotAgentIDPrefix+req.SessionID,
		models.CompactSnapshotAgentType, payloadJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to save compact snapshot: %w", err)
	}
	return ac, nil
}

// CompactSnapshot returns the raw stored snapshot payload for a session.
func (s *ContextService) CompactSnapshot(ctx context.Context, sessionID string) (map[string]any, error) {
	var roleContextJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT role_context FROM agent_contexts
		WHERE agent_id = $1 AND agent_type = $2`,
		models.CompactSnapshotAgentIDPrefix+sessionID, models.CompactSnapshotAgentType).
		Scan(&roleContextJSON)
	if err == pgx.ErrNoRows {
		return nil, NewNotFoundError("compact snapshot", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load compact snapshot: %w", err)
	}

	var snapshot map[string]any
	if err := unmarshalJSONB(roleContextJSON, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CompactStatus reports whether a session has a snapshot and whether a
// restore marked it compacted.
func (s *ContextService) CompactStatus(ctx context.Context, sessionID string) (*models.CompactStatus, error) {
	status := &models.CompactStatus{}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM agent_contexts WHERE agent_id = $1 AND agent_type = $2
		)`,
		models.CompactSnapshotAgentIDPrefix+sessionID, models.CompactSnapshotAgentType).
		Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check compact snapshot: %w", err)
	}
	status.Exists = exists

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if IsNotFound(err) {
			return status, nil
		}
		return nil, err
	}

	if compacted, ok := session.Metadata["compacted"].(bool); ok && compacted {
		status.Compacted = true
		if summary, ok := session.Metadata["compact_summary"].(string); ok {
			status.CompactSummary = summary
		}
		if agent, ok := session.Metadata["compact_agent"].(string); ok {
			status.CompactAgent = agent
		}
		if raw, ok := session.Metadata["compacted_at"].(string); ok {
			if t, err := parseRFC3339(raw); err == nil {
				status.CompactedAt = &t
			}
		}
	}
	return status, nil
}

// GenerateBrief loads the database snapshot for an agent in a session and
// renders the brief. It never mutates state: messages stay unread.
func (s *ContextService) GenerateBrief(ctx context.Context, req models.GenerateBriefRequest) (*models.Brief, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	in, err := s.loadBriefInput(ctx, req, "")
	if err != nil {
		return nil, err
	}

	b := brief.Generate(*in)
	return &b, nil
}

// CompactRestore marks the session compacted, merges the saved snapshot into
// the brief and appends the host-supplied compact summary.
func (s *ContextService) CompactRestore(ctx context.Context, req models.CompactRestoreRequest) (*models.Brief, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}

	if err := s.sessions.MarkCompacted(ctx, req.SessionID, req.CompactSummary, req.AgentID); err != nil {
		return nil, err
	}

	briefReq := models.GenerateBriefRequest{
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		AgentType: req.AgentType,
		MaxTokens: req.MaxTokens,
	}
	in, err := s.loadBriefInput(ctx, briefReq, req.CompactSummary)
	if err != nil {
		return nil, err
	}

	if snapshot, err := s.CompactSnapshot(ctx, req.SessionID); err == nil {
		in.Snapshot = snapshot
	} else if !IsNotFound(err) {
		return nil, err
	}

	b := brief.Generate(*in)
	return &b, nil
}

// loadBriefInput runs the fixed query pipeline behind brief generation.
func (s *ContextService) loadBriefInput(ctx context.Context, req models.GenerateBriefRequest, compactSummary string) (*brief.Input, error) {
	in := &brief.Input{
		AgentID:        req.AgentID,
		AgentType:      req.AgentType,
		MaxTokens:      brief.ClampMaxTokens(req.MaxTokens),
		CompactSummary: compactSummary,
	}
	historyLimit := brief.ClampHistoryLimit(req.HistoryLimit)
	includeHistory := req.IncludeHistory == nil || *req.IncludeHistory
	includeMessages := req.IncludeMessages == nil || *req.IncludeMessages
	includeBlocking := req.IncludeBlocking == nil || *req.IncludeBlocking

	// Active subtasks assigned to this agent (by id, or by type when given).
	rows, err := s.pool.Query(ctx, `
		SELECT `+subtaskColumns+` FROM subtasks
		WHERE status IN ('running', 'paused', 'blocked')
		  AND (agent_id = $1 OR ($2 <> '' AND agent_type = $2))
		ORDER BY created_at ASC`,
		req.AgentID, req.AgentType)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subtasks: %w", err)
	}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		in.Subtasks = append(in.Subtasks, *st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if includeMessages {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM agent_messages
			WHERE (to_agent = $1 OR to_agent IS NULL)
			  AND expires_at > now()
			  AND NOT ($1 = ANY(read_by))
			ORDER BY priority DESC, created_at ASC`,
			req.AgentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load unread messages: %w", err)
		}
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			in.Messages = append(in.Messages, *m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if includeBlocking {
		rows, err = s.pool.Query(ctx, `
			SELECT `+blockingColumns+` FROM blockings
			WHERE blocker = $1 OR blocked = $1
			ORDER BY created_at ASC`, req.AgentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load blockings: %w", err)
		}
		for rows.Next() {
			b, err := scanBlocking(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			in.Blocking = append(in.Blocking, *b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if includeHistory {
		rows, err = s.pool.Query(ctx, `
			SELECT `+actionColumns+` FROM actions
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, req.SessionID, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent actions: %w", err)
		}
		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			in.Actions = append(in.Actions, *a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	session, err := s.sessions.GetSession(ctx, req.SessionID)
	if err == nil {
		in.Session = session
		if session.ProjectID != nil {
			project, err := scanProject(s.pool.QueryRow(ctx,
				`SELECT `+projectColumns+` FROM projects WHERE id = $1`, *session.ProjectID))
			if err == nil {
				in.Project = project
			} else if err != pgx.ErrNoRows {
				return nil, fmt.Errorf("failed to load project: %w", err)
			}
		}
	} else if !IsNotFound(err) {
		return nil, err
	}

	return in, nil
}
